// Package identity keeps a client identity on disk so that the MQTT client
// ID survives restarts. A broker only resumes a persistent session for the
// same client ID.
package identity

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/benmeehan/mqttkit/pkg/file"
	"github.com/google/uuid"
)

// Identity holds the client's unique identifier and when it was created.
type Identity struct {
	ID        string    `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientInfoInterface defines methods for managing the client identity.
type ClientInfoInterface interface {
	LoadOrCreate() error
	GetClientID() string
	GetIdentity() *Identity
}

// ClientInfo manages the client identity and its associated file operations.
type ClientInfo struct {
	IdentityFile string
	Identity     Identity
	fileOps      file.FileOperations
}

// NewClientInfo initializes a new ClientInfo instance.
func NewClientInfo(filePath string, fileOps file.FileOperations) *ClientInfo {
	return &ClientInfo{
		IdentityFile: filePath,
		fileOps:      fileOps,
	}
}

// LoadOrCreate reads the identity file. When the file does not exist a new
// identity is generated and written back.
func (c *ClientInfo) LoadOrCreate() error {
	err := c.fileOps.ReadJsonFile(c.IdentityFile, &c.Identity)
	switch {
	case err == nil && c.Identity.ID != "":
		return nil
	case err == nil:
		// Empty or hand-edited file, regenerate.
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("failed to read identity file %s: %w", c.IdentityFile, err)
	}

	c.Identity = Identity{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	if err := c.fileOps.WriteJsonFile(c.IdentityFile, c.Identity); err != nil {
		return fmt.Errorf("failed to write identity file %s: %w", c.IdentityFile, err)
	}
	return nil
}

// GetIdentity returns the current Identity.
func (c *ClientInfo) GetIdentity() *Identity {
	return &c.Identity
}

// GetClientID returns the current client ID.
func (c *ClientInfo) GetClientID() string {
	return c.Identity.ID
}

package types

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// MountNamespace is the DBFS directory every mount point lives under.
const MountNamespace = "/mnt"

// MountRecord is the persisted form of a mount. It keeps the full source,
// including any embedded credentials, and the extra configs. Never hand it
// out to callers, use Descriptor instead.
type MountRecord struct {
	MountPoint string `json:"mountPoint"`

	Source string `json:"source"`

	EncryptionType string `json:"encryptionType,omitempty"`

	ExtraConfigs map[string]string `json:"extraConfigs,omitempty"`

	CreateTime int64 `json:"createTime"`
}

// MountDescriptor describes an active mount without its credentials.
type MountDescriptor struct {
	MountPoint string `json:"mountPoint"`

	Source string `json:"source"`

	EncryptionType string `json:"encryptionType,omitempty"`
}

type MountTable interface {
	PutMount(rec *MountRecord) error
	GetMount(mountPoint string) (*MountRecord, error)
	ListMounts() ([]*MountRecord, error)
	RemoveMount(mountPoint string) error
}

func (r *MountRecord) Validate() error {
	mountPoint, err := NormalizeMountPoint(r.MountPoint)
	if err != nil {
		return err
	}
	if mountPoint != r.MountPoint {
		return fmt.Errorf("%w: mount point %q is not normalized", ErrInvalidArgument, r.MountPoint)
	}
	if r.Source == "" {
		return fmt.Errorf("%w: mount source is empty", ErrInvalidArgument)
	}
	return ValidateEncryptionType(r.EncryptionType)
}

func (r *MountRecord) Descriptor() *MountDescriptor {
	return &MountDescriptor{
		MountPoint:     r.MountPoint,
		Source:         RedactSource(r.Source),
		EncryptionType: r.EncryptionType,
	}
}

// Contains reports whether the DBFS path p is the mount point or lies
// below it.
func (r *MountRecord) Contains(p string) bool {
	return p == r.MountPoint || strings.HasPrefix(p, r.MountPoint+"/")
}

// NormalizeMountPoint cleans a mount point and checks that it is a direct or
// nested child of MountNamespace. The "dbfs:" scheme is accepted.
func NormalizeMountPoint(mountPoint string) (string, error) {
	p := strings.TrimPrefix(mountPoint, "dbfs:")
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: mount point %q must be an absolute path", ErrInvalidArgument, mountPoint)
	}
	p = path.Clean(p)
	if !strings.HasPrefix(p, MountNamespace+"/") {
		return "", fmt.Errorf("%w: mount point %q must be within %s", ErrInvalidArgument, mountPoint, MountNamespace)
	}
	return p, nil
}

// ValidateEncryptionType accepts "", "sse-s3", "sse-kms" and
// "sse-kms:<key-id>".
func ValidateEncryptionType(encryptionType string) error {
	switch encryptionType {
	case "", "sse-s3", "sse-kms":
		return nil
	}
	keyID, ok := strings.CutPrefix(encryptionType, "sse-kms:")
	if ok && keyID != "" {
		return nil
	}
	return fmt.Errorf("%w: unsupported encryption type %q", ErrInvalidArgument, encryptionType)
}

// RedactSource removes user info (access keys, tokens) from a source URI.
func RedactSource(source string) string {
	u, err := url.Parse(source)
	if err == nil && u.Scheme != "" {
		if u.User == nil {
			return source
		}
		u.User = nil
		return u.String()
	}

	// Secrets containing reserved characters make url.Parse fail, cut the
	// authority by hand.
	idx := strings.Index(source, "://")
	if idx < 0 {
		return source
	}
	rest := source[idx+3:]
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return source
	}
	return source[:idx+3] + rest[at+1:]
}

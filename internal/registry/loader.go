package registry

import (
	"context"
	"encoding/json"
	"os"

	"gocloud.dev/secrets"

	apperrors "github.com/allisson/authgate/internal/errors"

	// Register KMS provider drivers for encrypted registry files.
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// Load reads, optionally decrypts, validates, and builds the registry from a
// file. When kmsKeyURI is non-empty the file content is a KMS-encrypted blob
// which is decrypted with the configured keeper before parsing.
// Supported keepers: gcpkms://, awskms://, azurekeyvault://, hashivault://,
// base64key://.
func Load(ctx context.Context, path, kmsKeyURI string) (*Registry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to read registry file %q", path)
	}

	if kmsKeyURI != "" {
		keeper, err := secrets.OpenKeeper(ctx, kmsKeyURI)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to open KMS keeper for registry")
		}
		defer func() { _ = keeper.Close() }()

		content, err = keeper.Decrypt(ctx, content)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to decrypt registry file")
		}
	}

	var doc Document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, apperrors.Wrapf(err, "failed to parse registry file %q", path)
	}

	return New(&doc)
}

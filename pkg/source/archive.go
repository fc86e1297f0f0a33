package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// ErrNotInArchive is returned when the archive lacks the expected member.
var ErrNotInArchive = errors.New("file not found in archive")

// Extract returns the contents of the member called name.
func Extract(archive []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", name, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotInArchive, name)
}

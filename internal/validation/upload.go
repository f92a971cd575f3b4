package validation

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Upload is an image file received with an ad form.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Ext returns the lower-cased extension without the dot.
func (u Upload) Ext() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(u.Filename)), ".")
}

var imageExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true}

// Content types accepted after sniffing the file header.
var imageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// sniffLimit is how much of each upload is read to detect its type.
const sniffLimit = 3072

// checkUploads enforces count, extension, size and actual image content.
// A file passing all checks has its ContentType replaced by the sniffed type.
func (v *Validator) checkUploads(errs Errors, uploads []Upload) {
	if len(uploads) > v.limits.MaxImages {
		errs.Add("images", fmt.Sprintf("The images may not have more than %d items.", v.limits.MaxImages))
	}
	for i, up := range uploads {
		field := fmt.Sprintf("images.%d", i)
		if !imageExtensions[up.Ext()] {
			errs.Add(field, fmt.Sprintf("The %s must be a file of type: jpg, jpeg, png, webp.", field))
			continue
		}
		if up.Size > v.limits.MaxImageBytes {
			errs.Add(field, fmt.Sprintf("The %s may not be greater than %d kilobytes.", field, v.limits.MaxImageBytes/1024))
			continue
		}
		detected, err := sniff(up)
		if err != nil {
			errs.Add(field, fmt.Sprintf("The %s failed to upload.", field))
			continue
		}
		if !mimetype.EqualsAny(detected, imageTypes...) {
			errs.Add(field, fmt.Sprintf("The %s must be an image.", field))
			continue
		}
		uploads[i].ContentType = detected
	}
}

func sniff(up Upload) (string, error) {
	if up.Open == nil {
		return "", fmt.Errorf("upload %s has no content", up.Filename)
	}
	r, err := up.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()
	mt, err := mimetype.DetectReader(io.LimitReader(r, sniffLimit))
	if err != nil {
		return "", err
	}
	return mt.String(), nil
}

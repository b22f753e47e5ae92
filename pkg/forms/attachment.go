package forms

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AttachmentKind discriminates the Attachment union.
type AttachmentKind string

const (
	// AttachmentPending has never been uploaded; Data holds the base64 content.
	AttachmentPending AttachmentKind = "pending"

	// AttachmentUploaded already lives in blob storage.
	AttachmentUploaded AttachmentKind = "uploaded"
)

// Attachment is a file value in a submission. The kind is fixed at
// construction and serialized explicitly; it is never inferred from which
// fields happen to be set.
type Attachment struct {
	Kind        AttachmentKind `json:"kind"`
	FileName    string         `json:"fileName"`
	ContentType string         `json:"contentType,omitempty"`

	// Pending
	Data string `json:"data,omitempty"`

	// Uploaded
	ID        string `json:"id,omitempty"`
	URL       string `json:"url,omitempty"`
	IsPrivate bool   `json:"isPrivate,omitempty"`
}

// NewPendingAttachment builds an attachment that still has to be uploaded.
func NewPendingAttachment(fileName, contentType, base64Data string) Attachment {
	return Attachment{Kind: AttachmentPending, FileName: fileName, ContentType: contentType, Data: base64Data}
}

// NewUploadedAttachment builds a reference to an uploaded object.
func NewUploadedAttachment(id, url, fileName, contentType string, isPrivate bool) Attachment {
	return Attachment{Kind: AttachmentUploaded, ID: id, URL: url, FileName: fileName, ContentType: contentType, IsPrivate: isPrivate}
}

// Content decodes the base64 data of a pending attachment. A data URL
// prefix ("data:image/png;base64,") is accepted.
func (a Attachment) Content() ([]byte, error) {
	data := a.Data
	if strings.HasPrefix(data, "data:") {
		if i := strings.IndexByte(data, ','); i >= 0 {
			data = data[i+1:]
		}
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("attachment %q: %w", a.FileName, err)
	}
	return b, nil
}

// UnmarshalJSON rejects attachments without a known kind.
func (a *Attachment) UnmarshalJSON(b []byte) error {
	type raw Attachment
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	switch r.Kind {
	case AttachmentPending, AttachmentUploaded:
	default:
		return fmt.Errorf("attachment %q: unknown kind %q", r.FileName, r.Kind)
	}
	*a = Attachment(r)
	return nil
}

// PendingAttachmentPaths walks submission data and returns the paths of all
// attachments of kind pending. Values may be Attachment structs or their
// decoded JSON form.
func PendingAttachmentPaths(submission map[string]any) []string {
	var paths []string
	for k, v := range submission {
		walkAttachments(k, v, &paths)
	}
	return paths
}

func walkAttachments(path string, v any, paths *[]string) {
	switch t := v.(type) {
	case Attachment:
		if t.Kind == AttachmentPending {
			*paths = append(*paths, path)
		}
	case *Attachment:
		if t != nil && t.Kind == AttachmentPending {
			*paths = append(*paths, path)
		}
	case []Attachment:
		for i, a := range t {
			walkAttachments(path+"."+strconv.Itoa(i), a, paths)
		}
	case map[string]any:
		if kind, ok := t["kind"].(string); ok && AttachmentKind(kind) == AttachmentPending {
			*paths = append(*paths, path)
			return
		}
		for k, child := range t {
			walkAttachments(path+"."+k, child, paths)
		}
	case []any:
		for i, child := range t {
			walkAttachments(path+"."+strconv.Itoa(i), child, paths)
		}
	}
}

// ReplacePendingAttachments returns a copy of submission in which every
// pending attachment is replaced by the result of fn. Containers on the
// path to a replaced value are copied; everything else is shared. The walk
// stops at the first error.
func ReplacePendingAttachments(submission map[string]any, fn func(path string, a Attachment) (Attachment, error)) (map[string]any, error) {
	out := make(map[string]any, len(submission))
	for k, v := range submission {
		nv, err := replaceAttachments(k, v, fn)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func replaceAttachments(path string, v any, fn func(string, Attachment) (Attachment, error)) (any, error) {
	switch t := v.(type) {
	case Attachment:
		if t.Kind == AttachmentPending {
			return fn(path, t)
		}
	case *Attachment:
		if t != nil && t.Kind == AttachmentPending {
			a, err := fn(path, *t)
			if err != nil {
				return nil, err
			}
			return &a, nil
		}
	case []Attachment:
		out := make([]Attachment, len(t))
		for i, a := range t {
			if a.Kind != AttachmentPending {
				out[i] = a
				continue
			}
			r, err := fn(path+"."+strconv.Itoa(i), a)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		if kind, ok := t["kind"].(string); ok && AttachmentKind(kind) == AttachmentPending {
			a, err := attachmentFromMap(t)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return fn(path, a)
		}
		out := make(map[string]any, len(t))
		for k, child := range t {
			nv, err := replaceAttachments(path+"."+k, child, fn)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			nv, err := replaceAttachments(path+"."+strconv.Itoa(i), child, fn)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	}
	return v, nil
}

func attachmentFromMap(m map[string]any) (Attachment, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return Attachment{}, err
	}
	var a Attachment
	if err := json.Unmarshal(b, &a); err != nil {
		return Attachment{}, err
	}
	return a, nil
}

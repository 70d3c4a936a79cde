package cloudstorage

import "time"

// FileType classifies an Item's content, mirroring the provider-agnostic
// buckets every back-end's native type system is squeezed into.
type FileType int

const (
	Unknown FileType = iota
	Directory
	Image
	Video
	Audio
	Document
)

func (t FileType) String() string {
	switch t {
	case Directory:
		return "directory"
	case Image:
		return "image"
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Document:
		return "document"
	default:
		return "unknown"
	}
}

// Item is an immutable node in a provider's hierarchy. Rename/move
// operations return a new Item rather than mutating the receiver.
type Item struct {
	ID       string
	Filename string
	// Size is nil when the provider does not report a size ("unknown").
	Size *uint64
	// ModTime is nil when the provider does not report a timestamp.
	ModTime *time.Time
	Type    FileType
	// URL is an optional direct-content URL, populated by providers whose
	// GetItemURL hook resolves to a standing link rather than a redirect.
	URL string
}

// IsDirectory is a convenience matching the frequent type-switch on
// FileType in provider code.
func (i Item) IsDirectory() bool { return i.Type == Directory }

// WithName returns a copy of i renamed to name. Renaming to the current
// name is a no-op: the returned Item compares equal to i.
func (i Item) WithName(name string) Item {
	if name == i.Filename {
		return i
	}
	out := i
	out.Filename = name
	return out
}

// WithID returns a copy of i with a new provider-scoped identifier, used
// by moveItem/createDirectory response parsing to produce the post-move
// Item without mutating the original.
func (i Item) WithID(id string) Item {
	out := i
	out.ID = id
	return out
}

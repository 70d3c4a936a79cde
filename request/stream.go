package request

// Sink receives a downloaded byte stream. Implementations back
// downloadFile/getThumbnail. The engine guarantees Reset runs before the
// first byte of any (re)send, Progress is called with a monotonic now
// within one send, and exactly one of Done/Error fires, terminally.
type Sink interface {
	Reset()
	ReceivedData(p []byte)
	Progress(total, now int64)
	Done()
	Error(err error)
}

// Source supplies an uploaded byte stream. Implementations back
// uploadFile. PutData mirrors io.Reader's (n, err) shape but without the
// io.Reader name so provider code reads as spec.md's putData(buf, maxlen).
type Source interface {
	Reset()
	PutData(buf []byte) (n int, err error)
	Size() (known bool, size uint64)
	Progress(total, now int64)
	Done()
	Error(err error)
}

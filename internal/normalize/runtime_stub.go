//go:build !govips || !cgo

package normalize

// Startup is a no-op for the pure-Go codec.
func Startup() error {
	return nil
}

// Shutdown is a no-op for the pure-Go codec.
func Shutdown() {}

func newCodec() Codec {
	return stdCodec{}
}

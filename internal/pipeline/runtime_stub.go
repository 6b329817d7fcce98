//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func newEngine() (Engine, error) {
	return imagingEngine{}, nil
}

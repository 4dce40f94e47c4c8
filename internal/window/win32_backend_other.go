//go:build !windows

package window

func newWin32Backend(Options) (Backend, error) {
	return nil, ErrUnsupported
}

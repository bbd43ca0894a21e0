//go:build !linux

package reactor

func NewPoller() (Poller, error) {
	return nil, ErrUnsupported
}

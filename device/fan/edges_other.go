//go:build !linux
// +build !linux

package fan

func openGpiodEdges(chip string, offset int) (EdgeWaiter, error) {
	return nil, ErrUnsupported
}

func openSysfsEdges(pin int) (EdgeWaiter, error) {
	return nil, ErrUnsupported
}

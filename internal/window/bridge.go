package window

import "errors"

// Handles are the raw platform handles a graphics API needs to create a
// surface. Only the fields of the owning platform are set.
type Handles struct {
	Platform string `json:"platform"`

	// X11
	Display string `json:"display,omitempty"`
	Window  uint32 `json:"window,omitempty"`
	Visual  uint32 `json:"visual,omitempty"`

	// Win32
	HInstance uintptr `json:"hinstance,omitempty"`
	HWND      uintptr `json:"hwnd,omitempty"`
}

// PhysicalDevice is implemented by a graphics API's device handle.
type PhysicalDevice interface {
	PresentationSupport(queueFamily uint32, h Handles) bool
}

// Instance is implemented by a graphics API's instance handle.
type Instance interface {
	NewSurface(h Handles) (Surface, error)
}

// Surface is whatever presentable object Instance.NewSurface returns.
type Surface interface {
	Close() error
}

var errNilCollaborator = errors.New("nil graphics collaborator")

func presentationSupport(dev PhysicalDevice, queueFamily uint32, h Handles) bool {
	if dev == nil {
		return false
	}
	return dev.PresentationSupport(queueFamily, h)
}

func newRenderSurface(w Window, inst Instance) (Surface, error) {
	if w == nil || inst == nil {
		return nil, errNilCollaborator
	}
	return inst.NewSurface(w.Handles())
}

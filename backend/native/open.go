package native

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/passrec/backend"
	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/wgpu/hal"

	// Register the platform hal backends and the software rasterizer.
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func init() {
	backend.Register(backend.BackendNative, func() (gpucore.Backend, error) {
		return Open()
	})
}

// variantPriority is the order Open tries hal backends in.
var variantPriority = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

// Open creates a device on the most capable registered hal backend that
// exposes an adapter. The backend owns the device and destroys it on Close.
func Open() (*Backend, error) {
	var lastErr error
	for _, variant := range variantPriority {
		api, ok := hal.GetBackend(variant)
		if !ok {
			continue
		}
		b, err := OpenAPI(api)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoGPU
}

// OpenAPI creates a device on the given hal backend. Discrete and integrated
// adapters are preferred over the others.
func OpenAPI(api hal.Backend) (*Backend, error) {
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("native: create %v instance: %w", api.Variant(), err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %v", ErrNoGPU, api.Variant())
	}

	selected := &adapters[0]
	for i := range adapters {
		t := adapters[i].Info.DeviceType
		if t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open %q: %w", selected.Info.Name, err)
	}

	b := New(open.Device, open.Queue, fmt.Sprintf("%v/%s", api.Variant(), selected.Info.Name))
	b.instance = instance
	b.owned = true
	return b, nil
}

// halProvider is implemented by hosts that expose hal types next to the
// gpucontext handles.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider wraps the device and queue of a host application. The host
// keeps ownership: Close destroys what the backend created but not the
// device.
func FromProvider(p gpucontext.DeviceProvider) (*Backend, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrNotHAL)
	}
	var dev, q any = p.Device(), p.Queue()
	if hp, ok := p.(halProvider); ok {
		dev, q = hp.HalDevice(), hp.HalQueue()
	}
	device, ok := dev.(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: device is %T", ErrNotHAL, dev)
	}
	queue, ok := q.(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: queue is %T", ErrNotHAL, q)
	}
	name := "provider"
	if info := p.AdapterInfo(); info.Name != "" {
		name = "provider/" + info.Name
	}
	return New(device, queue, name), nil
}

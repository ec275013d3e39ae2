// Command rhiinfo opens a device and prints what it supports.
//
// Usage:
//
//	rhiinfo [-backend name] [-config rhi.toml] [-adapter n] [-v]
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend"
	_ "github.com/gogpu/rhi/backend/native"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func main() {
	var (
		backendName = flag.String("backend", "", "backend name (empty selects the best available)")
		configPath  = flag.String("config", "", "TOML configuration file")
		adapter     = flag.Int("adapter", -1, "adapter index (overrides the config file)")
		verbose     = flag.Bool("v", false, "log device and resource events")
		list        = flag.Bool("list", false, "list backends and exit")
	)
	flag.Parse()

	// The noop device lets rhiinfo run on machines without a GPU.
	backend.Register("noop", func() (hal.Backend, error) { return noop.API{}, nil })

	if *verbose {
		rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if *list {
		for _, name := range backend.Available() {
			fmt.Println(name)
		}
		return
	}

	cfg := rhi.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = rhi.LoadConfig(*configPath); err != nil {
			log.Fatalf("rhiinfo: %v", err)
		}
	}
	opts := []rhi.ContextOption{rhi.WithConfig(cfg), rhi.WithLabel("rhiinfo")}
	if *backendName != "" {
		opts = append(opts, rhi.WithBackend(*backendName))
	}
	if *adapter >= 0 {
		opts = append(opts, rhi.WithAdapter(*adapter))
	}

	ctx, err := rhi.NewContext(opts...)
	if err != nil {
		log.Fatalf("rhiinfo: %v", err)
	}
	defer func() {
		if err := ctx.Destroy(); err != nil {
			log.Printf("rhiinfo: %v", err)
		}
	}()

	printCapabilities(ctx.Capabilities())
	if err := printBindings(ctx); err != nil {
		log.Printf("rhiinfo: %v", err)
	}
}

func printCapabilities(caps rhi.Capabilities) {
	fmt.Printf("backend:      %s\n", backend.Name(caps.Backend))
	fmt.Printf("adapter:      %s (%s)\n", caps.Adapter.Name, caps.Adapter.DeviceType)
	if caps.Adapter.Driver != "" {
		fmt.Printf("driver:       %s %s\n", caps.Adapter.Driver, caps.Adapter.DriverInfo)
	}
	fmt.Printf("ray tracing:  %t\n", caps.RayTracing)
	fmt.Printf("indirect first instance: %t\n", caps.IndirectFirstInstance)
	fmt.Printf("bind groups:  %d\n", caps.Limits.MaxBindGroups)
	fmt.Printf("texture 2D:   %d\n", caps.Limits.MaxTextureDimension2D)
	fmt.Printf("buffer size:  %d\n", caps.Limits.MaxBufferSize)
}

// printBindings creates a typical material layout and shows where each
// declared slot lands in the native binding namespace.
func printBindings(ctx *rhi.Context) error {
	elems := []rhi.LayoutElement{
		{Name: "camera", Stages: rhi.StagesGraphics, Kind: rhi.ResourceKindConstantBuffer, Slot: 0},
		{Name: "material", Stages: rhi.StagesPixel, Kind: rhi.ResourceKindConstantBuffer, Slot: 1},
		{Name: "albedo", Stages: rhi.StagesPixel, Kind: rhi.ResourceKindTexture, Slot: 0},
		{Name: "normals", Stages: rhi.StagesPixel, Kind: rhi.ResourceKindTexture, Slot: 1},
		{Name: "linear", Stages: rhi.StagesPixel, Kind: rhi.ResourceKindSampler, Slot: 0},
		{Name: "lights", Stages: rhi.StagesPixel, Kind: rhi.ResourceKindStructuredBuffer, Slot: 2},
		{Name: "histogram", Stages: rhi.StagesCompute, Kind: rhi.ResourceKindStructuredBufferReadWrite, Slot: 0},
	}
	layout, err := ctx.Factory().CreateResourceLayout(rhi.ResourceLayoutDescription{Elements: elems})
	if err != nil {
		return err
	}
	defer layout.Destroy()

	fmt.Println("\nbindings:")
	for i, b := range layout.Bindings() {
		e := elems[i]
		fmt.Printf("  %-10s %-28s slot %2d -> %2d  (%s)\n",
			e.Name, e.Kind, e.Slot, b, strings.ToLower(e.Kind.Class().String()))
	}
	return nil
}

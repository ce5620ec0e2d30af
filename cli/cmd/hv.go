package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tlist/cli/config"
	"github.com/pithecene-io/tlist/cli/render"
	"github.com/pithecene-io/tlist/clock"
	"github.com/pithecene-io/tlist/device"
	"github.com/pithecene-io/tlist/iox"
	"github.com/pithecene-io/tlist/session"
)

// HVStatus is the high-voltage state read back from the instrument.
type HVStatus struct {
	MachineName string  `json:"machine_name" yaml:"machine_name"`
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Ramping     bool    `json:"ramping" yaml:"ramping"`
	Voltage     float64 `json:"voltage" yaml:"voltage"`
}

// hvRequest is the change asked for on the command line.
type hvRequest struct {
	setVoltage bool
	voltage    float64
	on, off    bool
}

// HVCommand returns the hv command.
func HVCommand() *cli.Command {
	return &cli.Command{
		Name:  "hv",
		Usage: "Switch or set the detector high voltage and report its state",
		Flags: append([]cli.Flag{
			ConfigFlag(),
			&cli.BoolFlag{Name: "on", Usage: "Enable the high voltage"},
			&cli.BoolFlag{Name: "off", Usage: "Disable the high voltage"},
			&cli.Float64Flag{Name: "voltage", Usage: "Set the voltage (0..1000 V)"},
			&cli.BoolFlag{Name: "status", Usage: "Only report the current state (default without other flags)"},
			&cli.StringFlag{Name: "device", Usage: "Device backend: sim or replay"},
		}, FormatFlag, NoColorFlag),
		Action: hvAction,
	}
}

func hvAction(c *cli.Context) error {
	req := hvRequest{
		setVoltage: c.IsSet("voltage"),
		voltage:    c.Float64("voltage"),
		on:         c.Bool("on"),
		off:        c.Bool("off"),
	}
	if err := req.validate(); err != nil {
		return configError("%v", err)
	}
	if c.Bool("status") && (req.setVoltage || req.on || req.off) {
		return configError("--status cannot be combined with --on, --off or --voltage")
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return configError("%v", err)
	}
	cfg.Device.Backend = resolveString(c, "device", cfg.Device.Backend)
	if cfg.Device.Backend == "" {
		cfg.Device.Backend = config.BackendSim
	}

	inst, err := openInstrument(cfg, clock.Real())
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCodeDevice)
	}
	defer iox.DiscardClose(inst)

	st, err := hvControl(c.Context, inst, req)
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCodeDevice)
	}
	return r.Render(st)
}

func (r hvRequest) validate() error {
	if r.on && r.off {
		return fmt.Errorf("--on and --off are mutually exclusive")
	}
	if r.setVoltage {
		return device.ValidateVoltage(r.voltage)
	}
	return nil
}

// hvControl applies req, then reads the state back. The voltage is set
// before the supply is switched on.
func hvControl(ctx context.Context, inst device.Instrument, req hvRequest) (*HVStatus, error) {
	if req.setVoltage {
		if err := inst.SetVoltage(ctx, req.voltage); err != nil {
			return nil, err
		}
	}
	if req.on || req.off {
		if err := inst.SetVoltageEnabled(ctx, req.on); err != nil {
			return nil, err
		}
	}

	var (
		st  HVStatus
		err error
	)
	if st.MachineName, err = inst.MachineName(ctx); err != nil {
		return nil, err
	}
	if st.Enabled, err = inst.VoltageEnabled(ctx); err != nil {
		return nil, err
	}
	if st.Ramping, err = inst.Ramping(ctx); err != nil {
		return nil, err
	}
	if st.Voltage, err = inst.Voltage(ctx); err != nil {
		return nil, err
	}
	return &st, nil
}

// Package main is a command line tool that calibrates the extrinsics of a camera rig from a
// dataset of target correspondences.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/multicalib/calibration"
	"go.viam.com/multicalib/config"
	"go.viam.com/multicalib/logging"
)

const (
	flagConfig  = "config"
	flagDataset = "dataset"
	flagOut     = "out"
	flagDebug   = "debug"
	flagQuiet   = "quiet"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "multicam_calibration",
		Usage: "estimate the relative poses of a camera rig",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "calibrate the rig described by a config and a dataset",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Usage:    "load calibration settings from `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagDataset,
						Aliases:  []string{"d"},
						Usage:    "load correspondences and intrinsics from `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:    flagOut,
						Aliases: []string{"o"},
						Usage:   "write the result as JSON to `FILE`",
					},
					&cli.BoolFlag{
						Name:  flagQuiet,
						Usage: "do not print the result table",
					},
				},
				Action: runAction,
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema of the config and dataset files",
				Action: func(c *cli.Context) error {
					schemas := map[string]*jsonschema.Schema{
						"config":  jsonschema.Reflect(&config.Config{}),
						"dataset": jsonschema.Reflect(&calibration.Dataset{}),
					}
					enc := json.NewEncoder(c.App.Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(schemas)
				},
			},
		},
	}
}

func runAction(c *cli.Context) error {
	logger := logging.NewLogger("multicam_calibration")
	return calibrate(c.Context, c, logger)
}

func calibrate(ctx context.Context, c *cli.Context, logger logging.Logger) error {
	cfg, err := config.Read(ctx, c.String(flagConfig), logger)
	if err != nil {
		return err
	}
	config.InitLoggingSettings(logger, c.Bool(flagDebug), cfg)

	ds, err := calibration.ReadDataset(ctx, c.String(flagDataset), logger)
	if err != nil {
		return err
	}
	if len(ds.Cameras) != cfg.NumCameras {
		return errors.Errorf("dataset has intrinsics for %d cameras, config expects %d", len(ds.Cameras), cfg.NumCameras)
	}
	models, err := ds.Models(cfg.CameraType)
	if err != nil {
		return err
	}
	observations, err := ds.Observations(cfg.NumCameras, logger)
	if err != nil {
		return err
	}

	intrinsics := &calibration.PlanarPoseCalibrator{Models: models, Logger: logger.Sublogger("intrinsics")}
	calib, err := calibration.NewCalibrator(cfg, observations, intrinsics, logger)
	if err != nil {
		return err
	}
	res, err := calib.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "calibration failed")
	}

	if out := c.String(flagOut); out != "" {
		if err := res.WriteFile(out); err != nil {
			return err
		}
		logger.Infow("wrote calibration result", "path", out)
	}
	if !c.Bool(flagQuiet) {
		fmt.Fprintln(c.App.Writer, res.String())
	}
	return nil
}

package main

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/restitch/restitch/rebuild"
)

func calcFPCmd() *cli.Command {
	return &cli.Command{
		Name:  "calcfp",
		Usage: "Print the per-sector fingerprints of a local file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Required: true, Usage: "Path to local file"},
		},
		Action: func(c *cli.Context) error {
			ref, err := rebuild.LoadReference(c.String("file"))
			if err != nil {
				return fmt.Errorf("error loading file: %w", err)
			}

			fmt.Printf("Chunked file into %d sectors, total size: %d bytes\n", ref.SectorCount(), ref.Length())
			for i := int64(0); i < ref.SectorCount(); i++ {
				fp := rebuild.CalcFP(ref.Sector(i))
				fmt.Printf("Sector %d: len=%d, fp=%s\n", i, ref.SectorLen(i), hex.EncodeToString(fp[:]))
			}
			return nil
		},
	}
}

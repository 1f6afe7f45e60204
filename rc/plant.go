package main

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/restitch/restitch/rebuild"
)

// plantCmd builds a synthetic damaged disk image: a noise-filled (or
// zero-filled) image with the sectors of a local file scattered across the
// given addresses, for exercising a rebuild end to end without real
// hardware.
func plantCmd() *cli.Command {
	return &cli.Command{
		Name:  "plant",
		Usage: "Build a synthetic disk image with a file's sectors planted at given addresses",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Required: true, Usage: "Path to the file to plant"},
			&cli.StringFlag{Name: "image", Required: true, Usage: "Path of the image to create"},
			&cli.Int64Flag{Name: "sectors", Usage: "Image size in sectors; 0 picks 4x the file"},
			&cli.StringFlag{Name: "at", Required: true, Usage: "Comma-separated byte addresses for the planted segments, e.g. 0x4000,0x9000"},
			&cli.StringFlag{Name: "corrupt", Usage: "Comma-separated byte addresses of sectors to scramble after planting"},
			&cli.BoolFlag{Name: "zero-fill", Usage: "Fill the image with zeros instead of random noise"},
			&cli.Int64Flag{Name: "seed", Value: 1, Usage: "Seed for the noise generator"},
		},
		Action: plant,
	}
}

func plant(c *cli.Context) error {
	ref, err := rebuild.LoadReference(c.String("file"))
	if err != nil {
		return fmt.Errorf("error loading file: %w", err)
	}

	starts, err := parseAddrList(c.String("at"))
	if err != nil {
		return fmt.Errorf("invalid --at: %w", err)
	}
	corrupt, err := parseAddrList(c.String("corrupt"))
	if err != nil {
		return fmt.Errorf("invalid --corrupt: %w", err)
	}

	sectors := c.Int64("sectors")
	if sectors <= 0 {
		sectors = ref.SectorCount() * 4
	}

	image := make([]byte, sectors*rebuild.SectorSize)
	if !c.Bool("zero-fill") {
		rnd := rand.New(rand.NewSource(c.Int64("seed")))
		rnd.Read(image)
	}

	// split the file evenly across the segment starts, in file order
	per := (ref.SectorCount() + int64(len(starts)) - 1) / int64(len(starts))
	index := int64(0)
	for seg, start := range starts {
		n := per
		if left := ref.SectorCount() - index; n > left {
			n = left
		}
		if start+n > sectors {
			return fmt.Errorf("segment %d at sector %d overruns the %d-sector image", seg, start, sectors)
		}
		for i := int64(0); i < n; i++ {
			copy(image[(start+i)*rebuild.SectorSize:], ref.Sector(index))
			index++
		}
		fmt.Printf("Planted sectors %d..%d at device sector %d\n", index-n, index-1, start)
	}

	for _, addr := range corrupt {
		if addr >= sectors {
			return fmt.Errorf("corrupt address %d is beyond the %d-sector image", addr, sectors)
		}
		sec := image[addr*rebuild.SectorSize : (addr+1)*rebuild.SectorSize]
		for i := range sec {
			sec[i] ^= 0xA5
		}
		fmt.Printf("Scrambled device sector %d\n", addr)
	}

	if err := os.WriteFile(c.String("image"), image, 0644); err != nil {
		return fmt.Errorf("error writing image: %w", err)
	}
	fmt.Printf("Wrote %d-sector image to %s\n", sectors, c.String("image"))
	return nil
}

// parseAddrList parses comma-separated byte addresses (decimal or 0x hex)
// into sector addresses, rejecting unaligned values.
func parseAddrList(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		addr, err := strconv.ParseInt(part, 0, 64)
		if err != nil {
			return nil, err
		}
		if addr < 0 || addr%rebuild.SectorSize != 0 {
			return nil, fmt.Errorf("address %s is not %d-byte aligned", part, rebuild.SectorSize)
		}
		out = append(out, addr/rebuild.SectorSize)
	}
	return out, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/luca-patrignani/procomm/discovery"
)

const (
	defaultPort   = 7000
	discoveryFrom = 9000
	discoveryTo   = 9010
	timeout       = 60 * time.Second
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s serve [addr] | connect [addr] | spawn <n> | mesh <n> [http|https|grpc]\n", os.Args[0])
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	// Create a new slog handler with the default PTerm logger
	handler := pterm.NewSlogHandler(&pterm.DefaultLogger)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("pro", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("comm", pterm.FgDarkGray.ToStyle()),
	).Render()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(logger, argOr(2, "localhost:0"))
	case "connect":
		err = runConnect(logger, argOr(2, ""))
	case "spawn":
		err = runSpawn(countArg())
	case "mesh":
		err = runMesh(countArg(), argOr(3, "http"))
	default:
		usage()
	}
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}

func countArg() int {
	n, err := strconv.Atoi(argOr(2, ""))
	if err != nil || n < 1 {
		usage()
	}
	return n
}

func runServe(logger *slog.Logger, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer l.Close()
	pterm.Info.Printfln("Listening on %s", l.Addr())
	if tl, ok := l.(*net.TCPListener); ok {
		if subnet, err := subnetOfListener(tl); err == nil {
			pterm.Info.Printfln("Reachable from %s", subnet.String())
		}
	}
	d, err := discovery.NewWithOptions(l.Addr().String(),
		discovery.WithPortRange(discoveryFrom, discoveryTo),
		discovery.WithLogger(logger),
	)
	if err != nil {
		logger.Warn("endpoint not published", "error", err)
	} else {
		defer d.Close()
	}

	spinner, _ := pterm.DefaultSpinner.Start("Waiting for the remote process ...")
	r, err := serve(l, timeout, logger)
	if err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()
	pterm.Println(reportPanel(r))
	return nil
}

func runConnect(logger *slog.Logger, addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if addr == "" {
		d, err := discovery.NewWithOptions("",
			discovery.WithPortRange(discoveryFrom, discoveryTo),
			discovery.WithAttempts(uint(timeout/time.Second)),
			discovery.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		entry, err := d.Lookup(ctx)
		err = errors.Join(err, d.Close())
		if err != nil {
			return err
		}
		addr = entry.Info
		pterm.Info.Printfln("Discovered %s on port %d", addr, entry.Port)
	} else {
		local := net.IPv4(127, 0, 0, 1)
		if ip, err := outboundIP(); err == nil {
			local = ip
		}
		resolved, err := resolveAddress(local, addr, defaultPort)
		if err != nil {
			return err
		}
		addr = resolved
	}

	spinner, _ := pterm.DefaultSpinner.Start("Connecting to " + addr + " ...")
	if err := connect(ctx, addr, 0xC0FFEE, logger); err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()
	pterm.Success.Printfln("Sent %d elements with tag %d and triggered rmi %d", dataLength, dataTag, rmiTag)
	return nil
}

func runSpawn(n int) error {
	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Running %d ranks ...", n))
	results, err := spawn(n)
	if err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()
	return pterm.DefaultTable.WithHasHeader().WithData(spawnTable(results)).Render()
}

func runMesh(n int, kind string) error {
	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Gathering over %d %s peers ...", n, kind))
	ranks, err := mesh(n, kind, timeout)
	if err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()
	pterm.Println(meshLine(ranks))
	return nil
}

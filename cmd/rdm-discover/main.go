// Command rdm-discover walks the RDM discovery algorithm on a serial
// DMX port and prints the devices it finds.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/backkem/dmx/pkg/dmx"
	"github.com/backkem/dmx/pkg/dmx/transport"
	"github.com/backkem/dmx/pkg/rdm"
	"github.com/pion/logging"
)

func main() {
	device := flag.String("device", "/dev/ttyUSB0", "serial device to open")
	uidStr := flag.String("uid", "7ff0:12345678", "controller UID (xxxx:xxxxxxxx)")
	timeout := flag.Duration("timeout", rdm.DefaultRequestTimeout, "per-request response timeout")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	uid, err := rdm.ParseUID(*uidStr)
	if err != nil {
		log.Fatal(err)
	}

	var loggerFactory logging.LoggerFactory
	if *verbose {
		f := logging.NewDefaultLoggerFactory()
		f.DefaultLogLevel = logging.LogLevelDebug
		loggerFactory = f
	}

	conn, err := transport.OpenSerial(transport.SerialConfig{
		Device:        *device,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatal(err)
	}

	drv, err := dmx.Install(0, dmx.Config{
		Transport:     conn,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer dmx.Uninstall(0)

	ctrl, err := rdm.NewController(drv, rdm.ControllerConfig{
		UID:            uid,
		RequestTimeout: *timeout,
		LoggerFactory:  loggerFactory,
	})
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	uids, err := ctrl.DiscoverAll()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("found %d device(s) in %v\n", len(uids), time.Since(start).Round(time.Millisecond))

	for _, u := range uids {
		info, ack, err := ctrl.GetDeviceInfo(u, rdm.SubDeviceRoot)
		if err != nil {
			log.Fatal(err)
		}
		if !ack.OK() {
			fmt.Printf("%s  (device info: %s)\n", u, ack.Type)
			continue
		}
		label, _, _ := ctrl.GetDeviceLabel(u, rdm.SubDeviceRoot)
		sw, _, _ := ctrl.GetSoftwareVersionLabel(u, rdm.SubDeviceRoot)
		fmt.Printf("%s  model %04x  addr %d  footprint %d  %q (sw %q)\n",
			u, info.ModelID, info.StartAddress, info.FootprintSize, label, sw)
	}
}

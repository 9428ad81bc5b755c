// Command uds-gateway runs the passive sniffer, fingerprint resolver, and
// forward-bus interceptor against a live CAN interface, logs classified UDS
// traffic, and once a second logs the resolved steering parameters of every
// ECU that has a latched software version.
package main

import (
	"flag"
	"time"

	log "github.com/sirupsen/logrus"

	udssniffer "github.com/sunnypilot/opendbc-go"
	"github.com/sunnypilot/opendbc-go/pkg/can"
	_ "github.com/sunnypilot/opendbc-go/pkg/can/brutella"
	_ "github.com/sunnypilot/opendbc-go/pkg/can/rawsocket"
	_ "github.com/sunnypilot/opendbc-go/pkg/can/virtual"
	"github.com/sunnypilot/opendbc-go/pkg/config"
	"github.com/sunnypilot/opendbc-go/pkg/fingerprint"
	"github.com/sunnypilot/opendbc-go/pkg/interceptor"
)

func main() {
	log.SetLevel(log.InfoLevel)

	configPath := flag.String("c", "", "path to gateway config file (ini format)")
	canInterface := flag.String("i", "", "CAN driver name, overrides config [bus] interface")
	channel := flag.String("n", "", "CAN channel name, overrides config [bus] channel")
	debug := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	gw := &config.Gateway{Interface: "virtual", Channel: "can0"}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
		gw = loaded
	}
	if *canInterface != "" {
		gw.Interface = *canInterface
	}
	if *channel != "" {
		gw.Channel = *channel
	}
	gw.ApplyFingerprints()

	bus, err := can.NewBus(gw.Interface, gw.Channel)
	if err != nil {
		log.WithError(err).Fatalf("failed to create %q bus on %q", gw.Interface, gw.Channel)
	}

	clock := udssniffer.NewMonotonicClock()
	sniffer := udssniffer.NewSniffer(clock)
	sniffer.Init()

	filter := udssniffer.DefaultIsUDSAddress
	if len(gw.AllowAddresses) > 0 {
		filter = allowListFilter(gw.AllowAddresses)
	}

	resolver := fingerprint.NewResolver(nil)
	intercept := interceptor.New()

	sniffer.SetCallbacks(func(msg udssniffer.Message) {
		resolver.Consume(msg)
		log.WithFields(log.Fields{
			"service":  msg.ServiceID,
			"response": msg.IsResponse,
			"negative": msg.IsNegativeResponse,
		}).Debug("classified UDS message")
	}, filter)
	sniffer.Enable(true)

	if err := bus.Subscribe(can.FrameListenerFunc(func(frame can.Frame) {
		now := clock()
		verdict := intercept.Forward(now, frame.Bus, interceptor.DefaultDestination(frame.Bus), frame.ID&can.CanSffMask)
		if verdict == interceptor.VerdictDrop {
			return
		}
		sniffer.OfferFrame(frame.ToSnifferFrame())
	})); err != nil {
		log.WithError(err).Fatal("failed to subscribe to bus")
	}

	if err := bus.Connect(); err != nil {
		log.WithError(err).Fatalf("failed to connect to %q", gw.Channel)
	}
	defer bus.Disconnect()

	log.WithFields(log.Fields{"interface": gw.Interface, "channel": gw.Channel}).Info("uds-gateway running")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		sniffer.Tick()
		for _, addr := range fingerprint.DefaultECUAddresses {
			if version, ok := resolver.LatchedVersion(addr); ok {
				params := resolver.Lookup(addr)
				log.WithFields(log.Fields{
					"ecu":         addr,
					"version":     version,
					"slip_factor": params.SlipFactor,
					"steer_ratio": params.SteerRatio,
					"wheelbase":   params.Wheelbase,
				}).Info("fingerprint resolved")
			}
		}
	}
}

func allowListFilter(addresses []uint32) udssniffer.AddressFilter {
	allowed := make(map[uint32]bool, len(addresses))
	for _, addr := range addresses {
		allowed[addr] = true
	}
	return func(addr uint32) bool { return allowed[addr] }
}

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mbalug7/go-pca9641/pkg/gpio"
	"github.com/mbalug7/go-pca9641/pkg/hal"
	"github.com/mbalug7/go-pca9641/pkg/pca9641"
	"github.com/mbalug7/go-pca9641/pkg/periphi2c"
)

func main() {
	busName := flag.String("bus", "1", "I2C bus name, e.g. 1 or /dev/i2c-1")
	addr := flag.Uint("addr", 0x70, "PCA9641 I2C address")
	gpioChip := flag.String("gpiochip", "gpiochip0", "GPIO chip with the INT line")
	intLine := flag.Int("int", 25, "INT line offset, -1 disables interrupts")
	reserve := flag.Int("reserve", 0, "reserve time in ms, 0 disables the reserve timer")
	debug := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	cfg := zap.NewDevelopmentConfig()
	if !*debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	// RPi 4: bus 1 on GPIO 2/3, INT wired to GPIO 25
	tr, err := periphi2c.Open(*busName, uint16(*addr))
	if err != nil {
		log.Fatal(err)
	}

	opts := []pca9641.Option{pca9641.WithLogger(logger), pca9641.WithName("pca9641@" + *busName)}
	if *intLine >= 0 {
		pin, err := gpio.NewPin(*gpioChip, *intLine, gpio.WithPullUp())
		if err != nil {
			if cerr := tr.Close(); cerr != nil {
				log.Errorf("failed to close I2C transport: %s", cerr)
			}
			log.Fatal(err)
		}
		opts = append(opts, pca9641.WithInterruptPin(pin))
	}

	// verifies the ID register, transport and pin are closed on failure
	dev, err := pca9641.New(tr, opts...)
	if err != nil {
		log.Fatal(err)
	}

	notifications := make(chan pca9641.Notification, 8)
	if *intLine >= 0 {
		err = setupInterrupts(dev, notifications)
		if err != nil {
			log.Errorf("failed to setup interrupts: %s", err)
		}
	}

	err = pca9641.NewControlBuilder(dev).Priority(true).IdleTimerDisabled(false).Write()
	if err != nil {
		log.Errorf("failed to write control config: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	err = dev.RequestDownstreamBus(ctx, *reserve)
	cancel()
	switch {
	case errors.Is(err, pca9641.ErrBusInitFail):
		log.Warnf("downstream bus not available: %s", err)
		if err := dev.AbandonDownstreamBus(); err != nil {
			log.Errorf("failed to abandon downstream bus: %s", err)
		}
	case err != nil:
		log.Errorf("failed to request downstream bus: %s", err)
	default:
		log.Infof("downstream bus state: %s", dev.BusState())
	}

	signalInterruptChan := make(chan os.Signal, 1)
	signal.Notify(signalInterruptChan, os.Interrupt, syscall.SIGTERM)
loop:
	for {
		select {
		case n := <-notifications:
			handleNotification(log, dev, n)
		case <-signalInterruptChan:
			break loop
		}
	}

	err = dev.Close()
	if err != nil {
		log.Errorf("failed to close pca9641: %s", err)
	}
}

// setupInterrupts forwards INT notifications to the main loop, the device is not safe for
// concurrent use so the sink never touches it
func setupInterrupts(dev *pca9641.Device, out chan<- pca9641.Notification) error {
	err := dev.InterruptClearAll()
	if err != nil {
		return err
	}
	err = dev.InterruptEnable(pca9641.INTR_LOCK_GRANT, pca9641.INTR_BUS_LOST, pca9641.INTR_BUS_HUNG, pca9641.INTR_MBOX_FULL)
	if err != nil {
		return err
	}
	_, err = dev.Subscribe(func(n pca9641.Notification) {
		if n.Event.Edge != hal.EdgeFalling {
			return
		}
		select {
		case out <- n:
		default:
		}
	})
	return err
}

func handleNotification(log *zap.SugaredLogger, dev *pca9641.Device, n pca9641.Notification) {
	reasons, err := dev.InterruptReason()
	if err != nil {
		log.Errorf("failed to read interrupt reason: %s", err)
		return
	}
	log.Infof("%s interrupt on %s: %s", n.Device, n.Event.Pin, reasons)
	if reasons.Has(pca9641.INTR_MBOX_FULL) {
		v, err := dev.MailboxValue()
		if err != nil {
			log.Errorf("failed to read mailbox: %s", err)
		} else {
			log.Infof("mailbox: 0x%04x", v)
		}
	}
	if reasons.Has(pca9641.INTR_BUS_LOST) {
		log.Warnf("downstream bus lost, state was %s", dev.BusState())
	}
	err = dev.InterruptClear(reasons...)
	if err != nil {
		log.Errorf("failed to clear interrupts: %s", err)
	}
}

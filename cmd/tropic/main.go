// Command tropic talks to a secure element (or its simulator) from
// the command line.
//
// The chip is reached either over TCP (chip simulator, see
// cmd/tropic-model) or through a serial bus adapter:
//
//	tropic --tcp localhost:28992 info
//	tropic --serial /dev/ttyACM0 ping --data 48656c6c6f
//	tropic --tcp localhost:28992 --pairing-key key.hex sign --key-slot 5 --hash <hex>
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pion/logging"
	"github.com/urfave/cli/v3"

	"github.com/avp-protocol/avp-tropic/pkg/l3"
	"github.com/avp-protocol/avp-tropic/pkg/port"
	"github.com/avp-protocol/avp-tropic/pkg/tropic"
)

func main() {
	app := &cli.Command{
		Name:  "tropic",
		Usage: "secure element host tool",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "tcp",
				Usage: "chip simulator TCP address",
			},
			&cli.StringFlag{
				Name:  "serial",
				Usage: "serial bus adapter device",
			},
			&cli.IntFlag{
				Name:  "baud",
				Usage: "serial baud rate",
				Value: port.DefaultSerialSpeed,
			},
			&cli.StringFlag{
				Name:  "pairing-key",
				Usage: "file with the hex-encoded pairing private key",
			},
			&cli.UintFlag{
				Name:  "slot",
				Usage: "pairing key slot",
				Value: 0,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "trace-level protocol logging",
			},
		},
		Commands: []*cli.Command{
			infoCommand(),
			logCommand(),
			pingCommand(),
			randomCommand(),
			signCommand(),
			fwUpdateCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// openDevice dials the chip and runs Init.
func openDevice(cmd *cli.Command) (*tropic.Device, error) {
	factory := logging.NewDefaultLoggerFactory()
	if cmd.Bool("verbose") {
		factory.DefaultLogLevel = logging.LogLevelTrace
	} else {
		factory.DefaultLogLevel = logging.LogLevelWarn
	}
	config := tropic.Config{LoggerFactory: factory}

	var p port.Port
	switch {
	case cmd.String("tcp") != "":
		bp, err := port.DialTCP(port.TCPConfig{
			Address:       cmd.String("tcp"),
			LoggerFactory: factory,
		})
		if err != nil {
			return nil, err
		}
		p = bp
	case cmd.String("serial") != "":
		bp, err := port.OpenSerial(port.SerialConfig{
			Device:        cmd.String("serial"),
			Speed:         int(cmd.Int("baud")),
			LoggerFactory: factory,
		})
		if err != nil {
			return nil, err
		}
		p = bp
	default:
		return nil, fmt.Errorf("one of --tcp or --serial is required")
	}

	dev := tropic.NewDevice(p, config)
	if err := dev.Init(); err != nil {
		// A chip stuck in maintenance mode is still reachable for
		// get-info and firmware update.
		if !errors.Is(err, tropic.ErrFirmwareBootFailed) {
			return nil, fmt.Errorf("chip init: %w", err)
		}
		fmt.Fprintln(os.Stderr, "warning: application firmware did not boot, chip is in maintenance mode")
	}
	return dev, nil
}

// openSession additionally establishes the secure session using the
// configured pairing key.
func openSession(cmd *cli.Command) (*tropic.Device, error) {
	dev, err := openDevice(cmd)
	if err != nil {
		return nil, err
	}

	keyFile := cmd.String("pairing-key")
	if keyFile == "" {
		return nil, fmt.Errorf("--pairing-key is required for session commands")
	}
	raw, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(keyBytes) != 32 {
		return nil, fmt.Errorf("pairing key must be 32 hex-encoded bytes")
	}
	var pairingPriv [32]byte
	copy(pairingPriv[:], keyBytes)

	chipPub, err := dev.ChipPublicKey()
	if err != nil {
		return nil, fmt.Errorf("read chip public key: %w", err)
	}

	if err := dev.StartSession(pairingPriv, uint8(cmd.Uint("slot")), chipPub); err != nil {
		return nil, err
	}
	return dev, nil
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Print chip identification and firmware versions",
		Action: func(_ context.Context, cmd *cli.Command) error {
			dev, err := openDevice(cmd)
			if err != nil {
				return err
			}
			defer dev.Close()

			id, err := dev.ChipID()
			if err != nil {
				return err
			}
			riscv, err := dev.RiscvFwVersion()
			if err != nil {
				return err
			}
			spect, err := dev.SpectFwVersion()
			if err != nil {
				return err
			}

			fmt.Printf("part number:  %s\n", strings.TrimRight(string(id.PartNumber[:]), "\x00"))
			fmt.Printf("silicon rev:  %s\n", id.SiliconRev)
			fmt.Printf("serial:       %x\n", id.SerialNumber)
			fmt.Printf("riscv fw:     %s\n", riscv)
			fmt.Printf("spect fw:     %s\n", spect)

			for bank := uint8(0); bank < 2; bank++ {
				info, err := dev.FwBankInfo(bank)
				if err != nil {
					return err
				}
				fmt.Printf("fw bank %d:    state 0x%02x %s (%d bytes)\n",
					info.BankID, info.State, info.Version, info.Size)
			}
			return nil
		},
	}
}

func logCommand() *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "Print the RISC-V firmware log",
		Action: func(_ context.Context, cmd *cli.Command) error {
			dev, err := openDevice(cmd)
			if err != nil {
				return err
			}
			defer dev.Close()

			text, err := dev.Log()
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		},
	}
}

func pingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Echo bytes through the secure channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data",
				Usage: "hex-encoded payload",
				Value: "6176702d74726f706963",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			data, err := hex.DecodeString(cmd.String("data"))
			if err != nil {
				return fmt.Errorf("bad --data: %w", err)
			}

			dev, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer dev.Close()

			echo, err := dev.Ping(data)
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", echo)
			return nil
		},
	}
}

func randomCommand() *cli.Command {
	return &cli.Command{
		Name:  "random",
		Usage: "Read bytes from the chip TRNG",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "n",
				Usage: "number of bytes",
				Value: 32,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			dev, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer dev.Close()

			out, err := dev.RandomBytes(int(cmd.Int("n")))
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", out)
			return nil
		},
	}
}

func signCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "ECDSA-sign a 32-byte hash with an on-chip P-256 key",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "key-slot",
				Usage: "ECC key slot",
				Value: 0,
			},
			&cli.StringFlag{
				Name:     "hash",
				Usage:    "hex-encoded 32-byte message hash",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "generate",
				Usage: "generate the key first if the slot is empty",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			hashBytes, err := hex.DecodeString(cmd.String("hash"))
			if err != nil || len(hashBytes) != 32 {
				return fmt.Errorf("--hash must be 32 hex-encoded bytes")
			}
			var hash [32]byte
			copy(hash[:], hashBytes)

			dev, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer dev.Close()

			slot := uint8(cmd.Uint("key-slot"))
			if cmd.Bool("generate") {
				if err := dev.EccKeyGenerate(slot, l3.CurveP256); err != nil {
					return err
				}
			}

			sig, err := dev.EcdsaSign(slot, hash)
			if err != nil {
				return err
			}
			info, err := dev.EccKeyRead(slot)
			if err != nil {
				return err
			}

			fmt.Printf("signature: %x\n", sig)
			fmt.Printf("publickey: %x\n", info.PublicKey)
			return nil
		},
	}
}

func fwUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:  "fw-update",
		Usage: "Update a mutable firmware bank and reboot",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "bank",
				Usage: "target firmware bank",
				Value: 1,
			},
			&cli.StringFlag{
				Name:     "image",
				Usage:    "firmware image file",
				Required: true,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			image, err := os.ReadFile(cmd.String("image"))
			if err != nil {
				return err
			}

			dev, err := openDevice(cmd)
			if err != nil {
				return err
			}
			defer dev.Close()

			if err := dev.EnterMaintenance(); err != nil {
				return err
			}
			if err := dev.UpdateFirmware(uint16(cmd.Uint("bank")), image); err != nil {
				return err
			}
			if err := dev.RebootToApplication(); err != nil {
				return err
			}

			version, err := dev.RiscvFwVersion()
			if err != nil {
				return err
			}
			fmt.Printf("chip back up, riscv fw %s\n", version)
			return nil
		},
	}
}

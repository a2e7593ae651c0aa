package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CodedInternet/sentrygun/logging"
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
)

// Bench tool: reads "<opcode> <value>" pairs from stdin, writes them to the board
// and prints the line it answers with.
func main() {
	port := flag.String("port", "/dev/ttyACM0", "Serial port the controller board is on")
	baud := flag.Int("baud", serialbus.DEFAULT_BAUD, "Baud rate")
	settle := flag.Duration("settle", 2*time.Second, "Time to wait for the board to reset after opening the port")
	flag.Parse()

	log := logging.New("info", nil)

	link, err := serialbus.Open(*port, serialbus.PortOptions{BaudRate: *baud})
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open port")
	}
	channel := serialbus.NewChannel(link, log)
	defer channel.Close()

	time.Sleep(*settle)

	fmt.Println("Enter two numbers from 0-255 separated by space to send. Type 'q' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Print("> "); scanner.Scan(); fmt.Print("> ") {
		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, "q") {
			break
		}

		parts := strings.Fields(input)
		if len(parts) != 2 {
			fmt.Println("Error: please enter two numbers separated by space")
			continue
		}

		opcode, err1 := strconv.ParseUint(parts[0], 10, 8)
		value, err2 := strconv.ParseUint(parts[1], 10, 8)
		if err1 != nil || err2 != nil {
			fmt.Println("Error: numbers must be between 0 and 255")
			continue
		}

		if _, err = serialbus.Drain(link); err != nil {
			log.Error().Err(err).Msg("drain failed")
			continue
		}
		if err = channel.SendRaw(uint8(opcode), uint8(value)); err != nil {
			log.Error().Err(err).Msg("send failed")
			continue
		}
		fmt.Printf("Sent bytes: %d %d\n", opcode, value)

		reply, err := serialbus.ReadLine(link)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("read failed")
		case reply == "":
			fmt.Println("Board: (no response)")
		default:
			fmt.Println("Board:", reply)
		}
	}
}

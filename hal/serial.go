package hal

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

/*
 * Serial drives a front-end microcontroller that owns the converter, the
 * timer and the enable line. Each command is one line, each reply is one
 * line:
 *
 *	T?        -> <timer ticks>
 *	C<input>  -> OK      select and power up an ADC input
 *	R         -> <raw>   one conversion on the selected input
 *	X         -> OK      release the ADC
 *	D<ticks>  -> OK      set the duty cycle
 *	E1 / E0   -> OK      MOSFET driver on / off
 *
 * Errors are reported as "ERR <text>".
 */

const serialTimeout = 100 * time.Millisecond

type Serial struct {
	port   io.ReadWriteCloser
	reader *bufio.Reader
	lock   sync.Mutex
	ticks  uint16
	inputs map[Channel]int
}

var _ Board = (*Serial)(nil)

// OpenSerial opens the front-end on the named port.
func OpenSerial(name string, baud int, inputs map[Channel]int) (*Serial, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(serialTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	s, err := newSerial(port, inputs)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	logger.Infof("Front-end on %s [%v baud], %d timer ticks", name, baud, s.ticks)
	return s, nil
}

func newSerial(port io.ReadWriteCloser, inputs map[Channel]int) (*Serial, error) {
	s := &Serial{
		port:   port,
		reader: bufio.NewReader(port),
		inputs: inputs,
	}
	reply, err := s.command("T?")
	if err != nil {
		return nil, fmt.Errorf("failed to query timer: %w", err)
	}
	ticks, err := strconv.ParseUint(reply, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("bad timer reply %q: %w", reply, err)
	}
	s.ticks = uint16(ticks)
	s.Enable(false)
	return s, nil
}

func (s *Serial) command(cmd string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, err := io.WriteString(s.port, cmd+"\n"); err != nil {
		return "", err
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "ERR") {
		return "", fmt.Errorf("%s: %s", cmd, strings.TrimSpace(strings.TrimPrefix(line, "ERR")))
	}
	return line, nil
}

func (s *Serial) expectOK(cmd string) {
	reply, err := s.command(cmd)
	if err != nil {
		logger.Errorf("Front-end command %s failed [%v]", cmd, err)
		return
	}
	if reply != "OK" {
		logger.Errorf("Front-end command %s: unexpected reply [%v]", cmd, reply)
	}
}

func (s *Serial) Acquire(ch Channel) {
	in, ok := s.inputs[ch]
	if !ok {
		logger.Errorf("No ADC input for %v", ch)
		return
	}
	s.expectOK(fmt.Sprintf("C%d", in))
}

func (s *Serial) Read(ch Channel) uint16 {
	reply, err := s.command("R")
	if err != nil {
		logger.Debugf("Error reading %v [%v]", ch, err)
		return 0
	}
	raw, err := strconv.ParseUint(reply, 10, 16)
	if err != nil {
		logger.Debugf("Bad reading for %v [%v]", ch, reply)
		return 0
	}
	return uint16(raw)
}

func (s *Serial) Release(ch Channel) {
	s.expectOK("X")
}

func (s *Serial) Ticks() uint16 {
	return s.ticks
}

func (s *Serial) SetDuty(ticks uint16) {
	s.expectOK(fmt.Sprintf("D%d", ticks))
}

func (s *Serial) Enable(on bool) {
	if on {
		s.expectOK("E1")
		return
	}
	s.expectOK("E0")
}

func (s *Serial) Close() error {
	s.Enable(false)
	return s.port.Close()
}

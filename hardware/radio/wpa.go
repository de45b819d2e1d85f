package radio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermonode/helpers"
	"github.com/temoto/thermonode/log2"
)

const DefaultCtrlDir = "/var/run/wpa_supplicant"
const DefaultRfkillPath = "/dev/rfkill"
const DefaultInterface = "wlan0"
const DefaultRequestTimeout = 3 * time.Second

// linux/rfkill.h
const (
	rfkillTypeWLAN      = 1
	rfkillOpChangeAll   = 3
	rfkillEventSizeV1   = 8
	wpaStateCompleted   = "COMPLETED"
	wpaReplyOK          = "OK"
	wpaReplyFail        = "FAIL"
	wpaReplyMaxLength   = 4096
	wpaLocalSocketLabel = "thermonode-wpa"
)

type WPAOptions struct {
	Interface      string
	CtrlDir        string
	RfkillPath     string // empty string disables power control
	RequestTimeout time.Duration
	Log            *log2.Log
}

// WPA controls running wpa_supplicant over its control socket.
// Every request uses fresh datagram socket, so supplicant restarts
// while radio is powered down do not matter.
type WPA struct {
	opt WPAOptions
}

// local socket name suffix, unique within process
var wpaSeq uint32

func NewWPA(opt WPAOptions) *WPA {
	if opt.Interface == "" {
		opt.Interface = DefaultInterface
	}
	if opt.CtrlDir == "" {
		opt.CtrlDir = DefaultCtrlDir
	}
	if opt.RequestTimeout == 0 {
		opt.RequestTimeout = DefaultRequestTimeout
	}
	return &WPA{opt: opt}
}

func (w *WPA) PowerUp() error   { return errors.Annotate(w.rfkill(false), "radio power up") }
func (w *WPA) PowerDown() error { return errors.Annotate(w.rfkill(true), "radio power down") }

func (w *WPA) Connect(name, passphrase string) error {
	if _, err := w.request("REMOVE_NETWORK all"); err != nil {
		return errors.Annotate(err, "radio connect")
	}
	reply, err := w.request("ADD_NETWORK")
	if err != nil {
		return errors.Annotate(err, "radio connect")
	}
	id, err := strconv.Atoi(reply)
	if err != nil {
		return errors.Annotatef(err, "radio connect ADD_NETWORK reply=%q", reply)
	}
	cmds := []string{fmt.Sprintf("SET_NETWORK %d ssid %s", id, quote(name))}
	if passphrase == "" {
		cmds = append(cmds, fmt.Sprintf("SET_NETWORK %d key_mgmt NONE", id))
	} else {
		cmds = append(cmds, fmt.Sprintf("SET_NETWORK %d psk %s", id, quote(passphrase)))
	}
	cmds = append(cmds, fmt.Sprintf("SELECT_NETWORK %d", id))
	for _, cmd := range cmds {
		if err = w.expectOK(cmd); err != nil {
			return errors.Annotate(err, "radio connect")
		}
	}
	return nil
}

func (w *WPA) Associated() (bool, error) {
	reply, err := w.request("STATUS")
	if err != nil {
		return false, errors.Annotate(err, "radio status")
	}
	status := parseStatus(reply)
	w.opt.Log.Debugf("wpa_state=%s ssid=%s", status["wpa_state"], status["ssid"])
	return status["wpa_state"] == wpaStateCompleted, nil
}

func (w *WPA) Address() string { return interfaceAddress(w.opt.Interface) }

func (w *WPA) Disconnect() error {
	err := w.expectOK("DISCONNECT")
	if _, err2 := w.request("REMOVE_NETWORK all"); err == nil {
		err = err2
	}
	return errors.Annotate(err, "radio disconnect")
}

func (w *WPA) expectOK(cmd string) error {
	reply, err := w.request(cmd)
	if err != nil {
		return err
	}
	if reply != wpaReplyOK {
		return errors.Errorf("wpa %s reply=%q", firstWord(cmd), reply)
	}
	return nil
}

func (w *WPA) request(cmd string) (string, error) {
	remote := &net.UnixAddr{Name: filepath.Join(w.opt.CtrlDir, w.opt.Interface), Net: "unixgram"}
	localPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("%s-%d-%d", wpaLocalSocketLabel, os.Getpid(), atomic.AddUint32(&wpaSeq, 1)))
	local := &net.UnixAddr{Name: localPath, Net: "unixgram"}
	_ = os.Remove(localPath)
	conn, err := net.DialUnix("unixgram", local, remote)
	if err != nil {
		return "", errors.Annotatef(err, "wpa dial %s", remote.Name)
	}
	defer os.Remove(localPath)
	defer conn.Close()

	if err = conn.SetDeadline(time.Now().Add(w.opt.RequestTimeout)); err != nil {
		return "", errors.Trace(err)
	}
	if _, err = conn.Write([]byte(cmd)); err != nil {
		return "", errors.Annotatef(err, "wpa send %s", firstWord(cmd))
	}
	buf := make([]byte, wpaReplyMaxLength)
	n, err := conn.Read(buf)
	if err != nil {
		return "", errors.Annotatef(err, "wpa receive %s", firstWord(cmd))
	}
	reply := strings.TrimSpace(string(buf[:n]))
	if reply == wpaReplyFail {
		return reply, errors.Errorf("wpa %s reply=FAIL", firstWord(cmd))
	}
	return reply, nil
}

func (w *WPA) rfkill(block bool) error {
	if w.opt.RfkillPath == "" {
		return nil
	}
	var soft uint8
	if block {
		soft = 1
	}
	// struct rfkill_event { __u32 idx; __u8 type; __u8 op; __u8 soft; __u8 hard; }
	buf := bytes.NewBuffer(make([]byte, 0, rfkillEventSizeV1))
	_ = binary.Write(buf, binary.LittleEndian, uint32(0))
	buf.Write([]byte{rfkillTypeWLAN, rfkillOpChangeAll, soft, 0})
	f, err := os.OpenFile(w.opt.RfkillPath, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return errors.Annotatef(err, "rfkill open %s", w.opt.RfkillPath)
	}
	defer f.Close()
	if err = helpers.WriteAll(f, buf.Bytes()); err != nil {
		return errors.Annotatef(err, "rfkill write block=%t", block)
	}
	return nil
}

func parseStatus(reply string) map[string]string {
	m := make(map[string]string)
	for _, line := range strings.Split(reply, "\n") {
		if i := strings.IndexByte(line, '='); i > 0 {
			m[line[:i]] = strings.TrimSpace(line[i+1:])
		}
	}
	return m
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}

// wpa_supplicant takes everything between outer quotes verbatim, no escapes.
func quote(s string) string { return "\"" + s + "\"" }

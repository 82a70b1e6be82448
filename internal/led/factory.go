package led

import (
	"os"
	"strings"

	"github.com/smazurov/dongled/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// board maps a device tree model to its LED names. The first LED type is
// the one used for session status.
type board struct {
	match string
	leds  map[string]string
	order []string
}

var boards = []board{
	{"NanoPC-T6", map[string]string{"system": "sys_led", "user": "usr_led"}, []string{"system", "user"}},
	{"Orange Pi", map[string]string{"green": "green_led", "blue": "blue_led"}, []string{"green", "blue"}},
	{"Raspberry Pi", map[string]string{"act": "ACT", "pwr": "PWR"}, []string{"act", "pwr"}},
}

// New detects the board and returns its LED controller together with the
// LED type to use for status. Boards without known LEDs get a no-op
// controller.
func New(logger logging.Logger) (Controller, string) {
	return newForModel(detectBoard(deviceTreeModelPath), "", logger)
}

func newForModel(model, root string, logger logging.Logger) (Controller, string) {
	for _, b := range boards {
		if strings.Contains(model, b.match) {
			logger.Info("Detected board with status LED", "board_model", model, "led", b.order[0])
			return newSysfs(root, b.leds), b.order[0]
		}
	}
	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return newNoop(logger), ""
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated.
	return strings.TrimRight(string(data), "\x00")
}

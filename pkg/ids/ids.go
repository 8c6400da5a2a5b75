// Package ids generates row identifiers: random UUIDs for accounts, posts
// and media, and time-ordered numeric ids for comments and messages.
package ids

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Custom Epoch (January 1, 2018 Midnight GMT = 2018-01-01T00:00:00Z)
const CUSTOM_EPOCH int64 = 1514764800000

func UUID() string {
	return uuid.NewString()
}

// Generator hands out ids made of a machine prefix, the milliseconds since
// CUSTOM_EPOCH and a per-millisecond counter.
type Generator struct {
	mu               sync.Mutex
	machineID        string
	currentTimestamp int64
	counter          int64
	now              func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{
		machineID:        MachineID(),
		currentTimestamp: -1,
		now:              time.Now,
	}
}

func (g *Generator) getCounter(timestamp int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentTimestamp > timestamp {
		return 0, fmt.Errorf("timestamps are not incremental")
	}
	if g.currentTimestamp == timestamp {
		counter := g.counter
		g.counter += 1
		return counter, nil
	}
	g.currentTimestamp = timestamp
	g.counter = 1
	return 0, nil
}

func (g *Generator) Next() (string, error) {
	timestamp := g.now().UnixMilli() - CUSTOM_EPOCH
	counter, err := g.getCounter(timestamp)
	if err != nil {
		return "", err
	}
	id, err := GenUniqueID(g.machineID, timestamp, counter)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func hashMacAddressPid(mac string) string {
	var hash uint16 = 0
	macPid := mac + strconv.Itoa(os.Getpid())
	for i := 0; i < len(macPid); i++ {
		hash += uint16(macPid[i] << (i & 1) * 8)
	}

	hashStr := strconv.FormatUint(uint64(hash), 10)
	if len(hashStr) > 3 {
		hashStr = hashStr[:3]
	} else if len(hashStr) < 3 {
		hashStr = strings.Repeat("0", 3-len(hashStr)) + hashStr
	}
	return hashStr
}

// MachineID derives a three digit prefix from the first universally
// administered MAC address and the process id.
func MachineID() string {
	interfaces, err := net.Interfaces()
	if err == nil {
		for _, i := range interfaces {
			if i.Flags&net.FlagUp != 0 && !bytes.Equal(i.HardwareAddr, nil) {
				// skip locally administered addresses
				if i.HardwareAddr[0]&2 == 2 {
					continue
				}
				return hashMacAddressPid(i.HardwareAddr.String())
			}
		}
	}
	return "000"
}

func GenUniqueID(machineID string, timestamp int64, counter int64) (int64, error) {
	timestampHex := strconv.FormatInt(timestamp, 16)
	if len(timestampHex) > 10 {
		timestampHex = timestampHex[:10]
	} else if len(timestampHex) < 10 {
		timestampHex = strings.Repeat("0", 10-len(timestampHex)) + timestampHex
	}

	counterHex := strconv.FormatInt(counter, 16)
	if len(counterHex) > 3 {
		counterHex = counterHex[:3]
	} else if len(counterHex) < 3 {
		counterHex = strings.Repeat("0", 3-len(counterHex)) + counterHex
	}

	uniqueID, err := strconv.ParseUint(machineID+timestampHex+counterHex, 16, 64)
	if err != nil {
		return 0, err
	}
	return int64(uniqueID & 0x7FFFFFFFFFFFFFFF), nil
}

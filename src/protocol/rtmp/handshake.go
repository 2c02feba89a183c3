package rtmp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"streamripper/src/utils"
)

type handshake struct {
	version       byte
	timeC1        uint32
	randomBytesC1 []byte
	timeS1        uint32
	randomBytesS1 []byte
	timeC2        uint32
	randomBytesC2 []byte
}

// handshake performs the server side of the simple (non digest) RTMP
// handshake.
func (c *connection) handshake() (err error) {
	h := c.handshaker

	// C0C1
	bsC0C1 := make([]byte, 1+HANDSHAKE_PKT_LEN)
	if _, err = io.ReadFull(c.rw, bsC0C1); err != nil {
		return fmt.Errorf("read c0c1: %w", err)
	}
	h.version = bsC0C1[0]
	if h.version != 3 {
		c.log.Warnf("unexpected rtmp version %d", h.version)
	}
	h.timeC1 = binary.BigEndian.Uint32(bsC0C1[1:5])
	h.randomBytesC1 = bsC0C1[9:]

	// S0S1S2
	buf := bytes.NewBuffer(make([]byte, 0, 1+2*HANDSHAKE_PKT_LEN))
	buf.WriteByte(3)

	bs4 := make([]byte, 4)
	h.timeS1 = uint32(time.Now().Unix())
	binary.BigEndian.PutUint32(bs4, h.timeS1)
	buf.Write(bs4)
	buf.Write(make([]byte, 4))
	h.randomBytesS1 = utils.RandBytes(HANDSHAKE_RAND_LEN)
	buf.Write(h.randomBytesS1)

	// S2 echoes C1
	buf.Write(bsC0C1[1:5])
	binary.BigEndian.PutUint32(bs4, uint32(time.Now().Unix()))
	buf.Write(bs4)
	buf.Write(h.randomBytesC1)

	if _, err = buf.WriteTo(c.rw); err != nil {
		return fmt.Errorf("write s0s1s2: %w", err)
	}
	if err = c.rw.Flush(); err != nil {
		return fmt.Errorf("write s0s1s2: %w", err)
	}

	// C2
	bsC2 := make([]byte, HANDSHAKE_PKT_LEN)
	if _, err = io.ReadFull(c.rw, bsC2); err != nil {
		return fmt.Errorf("read c2: %w", err)
	}
	h.timeC2 = binary.BigEndian.Uint32(bsC2[:4])
	h.randomBytesC2 = bsC2[8:]

	// Some encoders answer with a digest handshake C2; tolerate it.
	if h.timeC2 != h.timeS1 || !bytes.Equal(h.randomBytesC2, h.randomBytesS1) {
		c.log.Debug("c2 does not echo s1")
	}
	return nil
}

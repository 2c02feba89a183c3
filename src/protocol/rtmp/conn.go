package rtmp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"streamripper/src/utils"
)

type connection struct {
	id              string
	tcpConn         net.Conn
	rw              *utils.ReadWriter
	chunkSize       uint32
	remoteChunkSize uint32
	windowAckSize   uint32
	windowReceived  uint32
	chunkMap        map[uint32]*chunk
	handshaker      *handshake
	transactionId   int
	connInfo        utils.AMFObj
	publishInfo     publishInfo
	publishing      bool
	deleted         bool
	closeOnce       sync.Once
	onClose         func()
	log             *logrus.Entry
}

type publishInfo struct {
	name        string
	publishType string
}

func newConn(c net.Conn) *connection {
	id := uuid.NewV4().String()
	return &connection{
		id:              id,
		tcpConn:         c,
		rw:              utils.NewReadWriter(c),
		chunkSize:       DEFAULT_CHUNK_SIZE,
		remoteChunkSize: DEFAULT_CHUNK_SIZE,
		windowAckSize:   WINDOW_ACK_SIZE,
		handshaker:      &handshake{},
		chunkMap:        make(map[uint32]*chunk),
		log: logrus.WithFields(logrus.Fields{
			"component": "rtmp",
			"conn":      id,
			"remote":    c.RemoteAddr().String(),
		}),
	}
}

func (c *connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose()
		}
		err = c.tcpConn.Close()
	})
	return err
}

func (c *connection) readMsg() (*chunk, error) {
	for {
		b, err := c.rw.ReadByte()
		if err != nil {
			return nil, err
		}
		format := b >> 6
		csid := uint32(b & 0x3f)
		switch csid {
		case 0:
			b1, err := c.rw.ReadByte()
			if err != nil {
				return nil, unexpected(err)
			}
			csid = uint32(b1) + 64
		case 1:
			v, err := c.rw.ReadUint32LE(2)
			if err != nil {
				return nil, unexpected(err)
			}
			csid = v + 64
		}

		ch, ok := c.chunkMap[csid]
		if !ok {
			ch = &chunk{basicHeader: basicHeader{csid: csid}}
			c.chunkMap[csid] = ch
		}
		if err = c.readChunk(ch, format); err != nil {
			return nil, unexpected(err)
		}
		if ch.complete() {
			return ch.take(), nil
		}
	}
}

func (c *connection) readChunk(ch *chunk, format byte) (err error) {
	if ch.inProgress() && format != 3 {
		return fmt.Errorf("chunk stream %d: new header before message end, %d bytes missing",
			ch.csid, ch.length-ch.index)
	}
	newMsg := !ch.inProgress()
	ch.format = format

	if format < 3 {
		var ts uint32
		if ts, err = c.rw.ReadUint32BE(3); err != nil {
			return
		}
		if format < 2 {
			var lenAndTypeId uint32
			if lenAndTypeId, err = c.rw.ReadUint32BE(4); err != nil {
				return
			}
			ch.length = lenAndTypeId >> 8
			ch.typeId = byte(lenAndTypeId & 0xff)
			if format < 1 {
				if ch.streamId, err = c.rw.ReadUint32LE(4); err != nil {
					return
				}
			}
		}
		ch.hasExtTs = ts == 0xffffff
		if ch.hasExtTs {
			if ts, err = c.rw.ReadUint32BE(4); err != nil {
				return
			}
		}
		if format == 0 {
			ch.timestamp = ts
			ch.timeDelta = 0
		} else {
			ch.timeDelta = ts
			ch.timestamp += ts
		}
	} else {
		if ch.hasExtTs {
			if _, err = c.rw.ReadUint32BE(4); err != nil {
				return
			}
		}
		if newMsg {
			ch.timestamp += ch.timeDelta
		}
	}

	if newMsg {
		if ch.length > MAX_MSG_LEN {
			return fmt.Errorf("message of %d bytes too long", ch.length)
		}
		ch.data = make([]byte, ch.length)
		ch.index = 0
	}

	size := ch.length - ch.index
	if size > c.remoteChunkSize {
		size = c.remoteChunkSize
	}
	if _, err = io.ReadFull(c.rw, ch.data[ch.index:ch.index+size]); err != nil {
		return
	}
	ch.index += size
	return nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// handleMsg processes protocol control and command messages. Media and data
// messages are left to the caller.
func (c *connection) handleMsg(msg *chunk) error {
	c.handleCtrlMsg(msg)
	if err := c.ack(msg.length); err != nil {
		return err
	}
	switch msg.typeId {
	case TYPE_ID_CMD_MSG_AMF0, TYPE_ID_CMD_MSG_AMF3:
		return c.handleCmdMsg(msg)
	}
	return nil
}

func (c *connection) handleCtrlMsg(msg *chunk) {
	switch msg.typeId {
	case TYPE_ID_SET_CHUNK_SIZE:
		if len(msg.data) >= 4 {
			c.remoteChunkSize = binary.BigEndian.Uint32(msg.data) & 0x7fffffff
			c.log.Debugf("remote chunk size %d", c.remoteChunkSize)
		}
	case TYPE_ID_WINDOW_ACK_SIZE:
		if len(msg.data) >= 4 {
			c.windowAckSize = binary.BigEndian.Uint32(msg.data)
		}
	case TYPE_ID_ABORT_MSG:
		if len(msg.data) >= 4 {
			if ch, ok := c.chunkMap[binary.BigEndian.Uint32(msg.data)]; ok {
				ch.data = nil
				ch.index = 0
			}
		}
	}
}

func (c *connection) handleCmdMsg(msg *chunk) (err error) {
	data := msg.data
	if msg.typeId == TYPE_ID_CMD_MSG_AMF3 && len(data) > 0 {
		data = data[1:]
	}
	var datas []interface{}
	datas, err = utils.GetAMFHandler().DecodeBatch(data, utils.AMF0)
	if err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	if len(datas) == 0 {
		return nil
	}
	if name, ok := datas[0].(string); ok {
		c.log.Debugf("command %s", name)
		if handler, ok := cmdHandlers[name]; ok {
			return handler(c, msg, datas[1:])
		}
	}
	return nil
}

func (c *connection) ack(size uint32) error {
	c.windowReceived += size
	if c.windowReceived >= c.windowAckSize {
		bs := make([]byte, 4)
		binary.BigEndian.PutUint32(bs, c.windowReceived)
		if err := c.writeChunk(newChunk(TYPE_ID_ACK, CSID_AUTO, 0, bs)); err != nil {
			return err
		}
		c.windowReceived = 0
	}
	return nil
}

func (c *connection) writeAmfMsg(typeId byte, csid, streamId uint32, args ...interface{}) (err error) {
	var bs []byte
	var amfVer utils.AMFVersion
	switch typeId {
	case TYPE_ID_CMD_MSG_AMF3, TYPE_ID_DATA_MSG_AMF3, TYPE_ID_SHARED_OBJ_MSG_AMF3:
		amfVer = utils.AMF3
	default:
		amfVer = utils.AMF0
	}
	bs, err = utils.GetAMFHandler().EncodeBatch(amfVer, args...)
	if err != nil {
		return
	}
	return c.writeChunk(newChunk(typeId, csid, streamId, bs))
}

func (c *connection) writeChunk(ch *chunk) (err error) {
	if ch.typeId == TYPE_ID_SET_CHUNK_SIZE {
		c.chunkSize = binary.BigEndian.Uint32(ch.data)
	}
	numChunk := int((ch.length + c.chunkSize - 1) / c.chunkSize)
	if numChunk == 0 {
		numChunk = 1
	}
	for i := 0; i < numChunk; i++ {
		if i > 0 {
			ch.format = 3
		}
		if err = c.writeChunkHeader(ch); err != nil {
			return
		}
		start := uint32(i) * c.chunkSize
		end := start + c.chunkSize
		if end > ch.length {
			end = ch.length
		}
		if _, err = c.rw.Write(ch.data[start:end]); err != nil {
			return
		}
	}
	return c.rw.Flush()
}

func (c *connection) writeChunkHeader(ch *chunk) (err error) {
	var bsBH []byte
	fmtH := ch.format << 6
	if ch.csid < 64 {
		bsBH = []byte{fmtH | byte(ch.csid)}
	} else if tmpCsid := ch.csid - 64; tmpCsid < 0x100 {
		bsBH = []byte{fmtH, byte(tmpCsid)}
	} else {
		bsBH = []byte{fmtH | 1, byte(tmpCsid), byte(tmpCsid >> 8)}
	}
	if _, err = c.rw.Write(bsBH); err != nil {
		return
	}

	const tsLimit = uint32(0xffffff)
	hasExtTs := ch.timestamp >= tsLimit
	bs4 := make([]byte, 4)
	if ch.format < 3 {
		if hasExtTs {
			binary.BigEndian.PutUint32(bs4, tsLimit)
		} else {
			binary.BigEndian.PutUint32(bs4, ch.timestamp)
		}
		if _, err = c.rw.Write(bs4[1:]); err != nil {
			return
		}
	}
	if ch.format < 2 {
		binary.BigEndian.PutUint32(bs4, ch.length<<8|uint32(ch.typeId))
		if _, err = c.rw.Write(bs4); err != nil {
			return
		}
	}
	if ch.format < 1 {
		binary.LittleEndian.PutUint32(bs4, ch.streamId)
		if _, err = c.rw.Write(bs4); err != nil {
			return
		}
	}
	if hasExtTs {
		binary.BigEndian.PutUint32(bs4, ch.timestamp)
		_, err = c.rw.Write(bs4)
	}
	return
}

func (c *connection) app() string {
	if app, ok := c.connInfo["app"].(string); ok {
		return strings.Trim(app, "/")
	}
	return ""
}

// getPublisherName is app/name with any query string dropped from the name.
func (c *connection) getPublisherName() string {
	name := c.publishInfo.name
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	if app := c.app(); app != "" {
		return app + "/" + name
	}
	return name
}

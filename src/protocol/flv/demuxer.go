package flv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"streamripper/src/utils"
	"streamripper/src/video"
)

// Demuxer reads an FLV byte stream tag by tag.
type Demuxer struct {
	rw       *utils.ReadWriter
	closer   io.Closer
	unpacker *Unpacker
	hasVideo bool
	hasAudio bool
	queue    []video.Packet
	probeErr error
	log      *logrus.Entry
}

var _ video.Source = &Demuxer{}

// NewDemuxer reads the FLV header and probes the first tags for codec
// information. If r is an io.Closer it is closed by Close.
func NewDemuxer(r io.Reader, log *logrus.Entry) (*Demuxer, error) {
	if log == nil {
		log = logrus.WithField("component", "flv")
	}
	d := &Demuxer{
		rw:       utils.NewReader(r),
		unpacker: NewUnpacker(log),
		log:      log,
	}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	d.unpacker.SetHasAudio(d.hasAudio)
	d.probe()
	return d, nil
}

// OpenFile opens an .flv file for reading.
func OpenFile(path string) (*Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d, err := NewDemuxer(f, logrus.WithFields(logrus.Fields{
		"component": "flv",
		"file":      path,
	}))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return d, nil
}

func (d *Demuxer) readHeader() error {
	bs, err := d.rw.ReadN(HEADER_LEN)
	if err != nil {
		return fmt.Errorf("read flv header: %w", err)
	}
	if bs[0] != 'F' || bs[1] != 'L' || bs[2] != 'V' {
		return ErrNotFLV
	}
	d.hasAudio = bs[4]&FLAG_AUDIO != 0
	d.hasVideo = bs[4]&FLAG_VIDEO != 0

	if dataOffset := binary.BigEndian.Uint32(bs[5:9]); dataOffset > HEADER_LEN {
		if _, err = io.CopyN(io.Discard, d.rw, int64(dataOffset-HEADER_LEN)); err != nil {
			return fmt.Errorf("skip flv header: %w", err)
		}
	}
	// PreviousTagSize0
	if _, err = d.rw.ReadUint32BE(4); err != nil {
		return fmt.Errorf("read flv header: %w", err)
	}
	return nil
}

func (d *Demuxer) probe() {
	for i := 0; i < PROBE_TAG_LIMIT && !d.probed(); i++ {
		var p video.Packet
		if err := d.next(&p); err != nil {
			d.probeErr = err
			return
		}
		d.queue = append(d.queue, p)
	}
}

func (d *Demuxer) probed() bool {
	info := d.unpacker.Info()
	return (!d.hasVideo || info.VideoCodec != "") && (!d.hasAudio || info.AudioCodec != "")
}

func (d *Demuxer) Info() video.StreamInfo {
	return d.unpacker.Info()
}

func (d *Demuxer) Read(p *video.Packet) error {
	if len(d.queue) > 0 {
		*p = d.queue[0]
		d.queue = d.queue[1:]
		return nil
	}
	if d.probeErr != nil {
		err := d.probeErr
		d.probeErr = nil
		return err
	}
	return d.next(p)
}

func (d *Demuxer) next(p *video.Packet) error {
	for {
		typ, ts, streamID, body, err := d.readTag()
		if err != nil {
			return err
		}
		var dt video.DataType
		switch typ {
		case TAG_TYPE_VIDEO:
			dt = video.DATA_TYPE_VIDEO
		case TAG_TYPE_AUDIO:
			dt = video.DATA_TYPE_AUDIO
		case TAG_TYPE_SCRIPT:
			dt = video.DATA_TYPE_META
		default:
			d.log.Debugf("skip tag type %d", typ)
			continue
		}
		if err = d.unpacker.Unpack(dt, ts, streamID, body, p); err != nil {
			d.log.WithError(err).WithField("timestamp", ts).Warn("malformed tag, passing raw body")
		}
		return nil
	}
}

func (d *Demuxer) readTag() (typ byte, ts, streamID uint32, body []byte, err error) {
	hdr := make([]byte, TAG_HEADER_LEN)
	if _, err = io.ReadFull(d.rw, hdr); err != nil {
		return
	}
	if hdr[0]&0x20 != 0 {
		err = ErrEncryptedTag
		return
	}
	typ = hdr[0] & 0x1f
	size := uint32(hdr[1])<<16 | uint32(hdr[2])<<8 | uint32(hdr[3])
	ts = uint32(hdr[7])<<24 | uint32(hdr[4])<<16 | uint32(hdr[5])<<8 | uint32(hdr[6])
	streamID = uint32(hdr[8])<<16 | uint32(hdr[9])<<8 | uint32(hdr[10])

	if body, err = d.rw.ReadN(int(size)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		err = fmt.Errorf("read tag body: %w", err)
		return
	}
	// A stream cut right after the last tag body still yields that tag.
	if _, perr := d.rw.ReadUint32BE(4); perr != nil && !errors.Is(perr, io.EOF) && !errors.Is(perr, io.ErrUnexpectedEOF) {
		err = perr
	}
	return
}

func (d *Demuxer) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

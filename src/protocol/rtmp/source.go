package rtmp

import (
	"io"

	"streamripper/src/protocol/flv"
	"streamripper/src/video"
)

// Source reads the media a publisher pushes on one connection.
type Source struct {
	conn     *connection
	unpacker *flv.Unpacker
	queue    []video.Packet
	probeErr error
	onClose  func()
}

var _ video.Source = &Source{}

func newSource(conn *connection) *Source {
	s := &Source{
		conn:     conn,
		unpacker: flv.NewUnpacker(conn.log),
	}
	s.probe()
	return s
}

// probe reads ahead until the video codec is known.
func (s *Source) probe() {
	for i := 0; i < flv.PROBE_TAG_LIMIT && s.unpacker.Info().VideoCodec == ""; i++ {
		var p video.Packet
		if err := s.next(&p); err != nil {
			s.probeErr = err
			return
		}
		s.queue = append(s.queue, p)
	}
}

// Name is app/name of the published stream.
func (s *Source) Name() string {
	return s.conn.getPublisherName()
}

func (s *Source) Info() video.StreamInfo {
	return s.unpacker.Info()
}

// Read returns io.EOF once the publisher deletes its stream.
func (s *Source) Read(p *video.Packet) error {
	if len(s.queue) > 0 {
		*p = s.queue[0]
		s.queue = s.queue[1:]
		return nil
	}
	if s.probeErr != nil {
		err := s.probeErr
		s.probeErr = nil
		return err
	}
	return s.next(p)
}

func (s *Source) next(p *video.Packet) error {
	for !s.conn.deleted {
		msg, err := s.conn.readMsg()
		if err != nil {
			return err
		}
		if err = s.conn.handleMsg(msg); err != nil {
			return err
		}

		var dt video.DataType
		body := msg.data
		switch msg.typeId {
		case TYPE_ID_VIDEO_MSG:
			dt = video.DATA_TYPE_VIDEO
		case TYPE_ID_AUDIO_MSG:
			dt = video.DATA_TYPE_AUDIO
		case TYPE_ID_DATA_MSG_AMF0:
			dt = video.DATA_TYPE_META
		case TYPE_ID_DATA_MSG_AMF3:
			dt = video.DATA_TYPE_META
			if len(body) > 0 {
				body = body[1:]
			}
		default:
			continue
		}
		if err = s.unpacker.Unpack(dt, msg.timestamp, msg.streamId, body, p); err != nil {
			s.conn.log.WithError(err).WithField("timestamp", msg.timestamp).Warn("malformed message, passing raw body")
		}
		return nil
	}
	return io.EOF
}

func (s *Source) Close() error {
	err := s.conn.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

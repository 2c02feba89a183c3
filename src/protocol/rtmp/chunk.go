package rtmp

type chunk struct {
	format byte
	basicHeader
	messageHeader
	data []byte

	index uint32
}

type basicHeader struct {
	csid uint32
}

type messageHeader struct {
	timestamp uint32
	timeDelta uint32
	length    uint32
	typeId    byte
	streamId  uint32
	hasExtTs  bool
}

func newChunk(typeId byte, csid, streamId uint32, data []byte) *chunk {
	ch := &chunk{
		format: 0,
		messageHeader: messageHeader{
			streamId: streamId,
			typeId:   typeId,
			length:   uint32(len(data)),
		},
		data: data,
	}
	if csid == CSID_AUTO {
		switch typeId {
		case TYPE_ID_SET_CHUNK_SIZE,
			TYPE_ID_ABORT_MSG,
			TYPE_ID_ACK,
			TYPE_ID_WINDOW_ACK_SIZE,
			TYPE_ID_SET_PEER_BANDWIDTH,
			TYPE_ID_USER_CTRL_MSG:
			ch.basicHeader.csid = CSID_PRO_CTRL
		case TYPE_ID_CMD_MSG_AMF0, TYPE_ID_CMD_MSG_AMF3:
			ch.basicHeader.csid = CSID_CMD
		case TYPE_ID_DATA_MSG_AMF0, TYPE_ID_DATA_MSG_AMF3, TYPE_ID_VIDEO_MSG:
			ch.basicHeader.csid = CSID_VIDEO
		case TYPE_ID_AUDIO_MSG:
			ch.basicHeader.csid = CSID_AUDIO
		}
	} else {
		ch.basicHeader.csid = csid
	}

	return ch
}

// inProgress reports whether a message on this chunk stream is partially read.
func (ch *chunk) inProgress() bool {
	return ch.data != nil && ch.index < ch.length
}

func (ch *chunk) complete() bool {
	return ch.data != nil && ch.index == ch.length
}

// take detaches the completed message from the chunk stream state.
func (ch *chunk) take() *chunk {
	msg := &chunk{
		format:        ch.format,
		basicHeader:   ch.basicHeader,
		messageHeader: ch.messageHeader,
		data:          ch.data,
		index:         ch.index,
	}
	ch.data = nil
	ch.index = 0
	return msg
}

package rtmp

import (
	"encoding/binary"

	"streamripper/src/utils"
)

var cmdHandlers = map[string]func(*connection, *chunk, []interface{}) error{
	CMD_CONNECT:       cmdConnectHandler,
	CMD_CREATE_STREAM: cmdCreateStreamHandler,
	CMD_PUBLISH:       cmdPublishHandler,
	CMD_FC_UNPUBLISH:  cmdUnpublishHandler,
	CMD_DELETE_STREAM: cmdUnpublishHandler,
	CMD_CLOSE:         cmdUnpublishHandler,
}

func readTransactionId(conn *connection, datas []interface{}) {
	if len(datas) > 0 {
		if id, ok := datas[0].(float64); ok {
			conn.transactionId = int(id)
		}
	}
}

func cmdConnectHandler(conn *connection, ch *chunk, datas []interface{}) (err error) {
	readTransactionId(conn, datas)
	for _, d := range datas {
		if obj, ok := utils.ToAMFObj(d); ok {
			conn.connInfo = obj
		}
	}

	bs4 := make([]byte, 4)
	binary.BigEndian.PutUint32(bs4, WINDOW_ACK_SIZE)
	if err = conn.writeChunk(newChunk(TYPE_ID_WINDOW_ACK_SIZE, CSID_AUTO, 0, bs4)); err != nil {
		return
	}

	bs5 := make([]byte, 5)
	binary.BigEndian.PutUint32(bs5[:4], WINDOW_ACK_SIZE)
	bs5[4] = 2
	if err = conn.writeChunk(newChunk(TYPE_ID_SET_PEER_BANDWIDTH, CSID_AUTO, 0, bs5)); err != nil {
		return
	}

	bs4 = make([]byte, 4)
	binary.BigEndian.PutUint32(bs4, SERVER_CHUNK_SIZE)
	if err = conn.writeChunk(newChunk(TYPE_ID_SET_CHUNK_SIZE, CSID_AUTO, 0, bs4)); err != nil {
		return
	}

	resp := map[string]interface{}{
		"fmsVer":       "FMS/3,0,1,123",
		"capabilities": 31,
	}
	event := map[string]interface{}{
		"level":       "status",
		"code":        "NetConnection.Connect.Success",
		"description": "Connection succeeded.",
	}
	if enc, ok := conn.connInfo["objectEncoding"]; ok {
		event["objectEncoding"] = enc
	} else {
		event["objectEncoding"] = 0
	}

	return conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, ch.streamId, "_result", conn.transactionId, resp, event)
}

func cmdCreateStreamHandler(conn *connection, ch *chunk, datas []interface{}) error {
	readTransactionId(conn, datas)
	return conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, ch.streamId, "_result", conn.transactionId, nil, 1)
}

func cmdPublishHandler(conn *connection, ch *chunk, datas []interface{}) (err error) {
	readTransactionId(conn, datas)
	for k, v := range datas {
		if s, ok := v.(string); ok {
			switch k {
			case 2:
				conn.publishInfo.name = s
			case 3:
				conn.publishInfo.publishType = s
			}
		}
	}

	event := utils.AMFObj{
		"level":       "status",
		"code":        "NetStream.Publish.Start",
		"description": "Start publishing",
	}
	err = conn.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, ch.streamId, CMD_ONSTATUS, 0, nil, map[string]interface{}(event))
	if err != nil {
		return
	}
	conn.publishing = true
	conn.log.WithField("stream", conn.getPublisherName()).Info("publish started")
	return
}

func cmdUnpublishHandler(conn *connection, ch *chunk, datas []interface{}) error {
	conn.deleted = true
	return nil
}

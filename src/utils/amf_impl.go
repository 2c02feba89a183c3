package utils

import (
	"bytes"
	"io"

	amf "github.com/Barber0/goamf-1"
)

var (
	globalAMFHandler AMFHandler = amfHandlerImpl{}
)

func init() {
	GetAMFHandler = func() AMFHandler {
		return globalAMFHandler
	}
}

// amfHandlerImpl keeps no buffers between calls, so one value serves every
// connection and demuxer concurrently.
type amfHandlerImpl struct{}

func encoderFor(ver AMFVersion) func(amf.Writer, interface{}) (int, error) {
	if ver == AMF3 {
		return amf.AMF3_WriteValue
	}
	return amf.WriteValue
}

func decoderFor(ver AMFVersion) func(amf.Reader) (interface{}, error) {
	if ver == AMF3 {
		return amf.AMF3_ReadValue
	}
	return amf.ReadValue
}

func (h amfHandlerImpl) Encode(v interface{}, ver AMFVersion) ([]byte, error) {
	return h.EncodeBatch(ver, v)
}

func (h amfHandlerImpl) EncodeBatch(ver AMFVersion, args ...interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	encoder := encoderFor(ver)
	for _, v := range args {
		if _, err := encoder(buf, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (h amfHandlerImpl) Decode(bs []byte, ver AMFVersion) (interface{}, error) {
	return decoderFor(ver)(bytes.NewReader(bs))
}

func (h amfHandlerImpl) DecodeBatch(bs []byte, ver AMFVersion) ([]interface{}, error) {
	r := bytes.NewReader(bs)
	decoder := decoderFor(ver)
	resArr := []interface{}{}
	for r.Len() > 0 {
		v, err := decoder(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		resArr = append(resArr, v)
	}
	return resArr, nil
}

func toAMFObjExt(v interface{}) (AMFObj, bool) {
	switch obj := v.(type) {
	case amf.Object:
		return AMFObj(obj), true
	default:
		return nil, false
	}
}

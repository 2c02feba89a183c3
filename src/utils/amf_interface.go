package utils

type AMFHandler interface {
	Encode(interface{}, AMFVersion) ([]byte, error)
	EncodeBatch(AMFVersion, ...interface{}) ([]byte, error)
	Decode([]byte, AMFVersion) (interface{}, error)
	DecodeBatch([]byte, AMFVersion) ([]interface{}, error)
}

const (
	AMF0 AMFVersion = iota
	AMF3
)

type (
	AMFVersion byte
	AMFObj     map[string]interface{}
)

var GetAMFHandler func() AMFHandler

// ToAMFObj converts the object shapes produced by the AMF decoder into an
// AMFObj.
func ToAMFObj(v interface{}) (AMFObj, bool) {
	switch obj := v.(type) {
	case AMFObj:
		return obj, true
	case map[string]interface{}:
		return AMFObj(obj), true
	default:
		return toAMFObjExt(v)
	}
}

package simbridge

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/drivecap/pkg/ports"
)

// Error codes sent by the bridge.
const (
	CodeActorNotFound = "actor_not_found"
)

// imageHeaderSize is the size of the binary image header:
// sensor_id u32 | frame u64 | width u32 | height u32, little endian.
const imageHeaderSize = 4 + 8 + 4 + 4

// ErrShortImage is returned when a binary message is smaller than its header.
var ErrShortImage = errors.New("simbridge: image message too short")

type request struct {
	ID     uint64      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// RemoteError is an error reported by the bridge.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("simbridge: %s: %s", e.Code, e.Message)
}

// Unwrap maps bridge error codes onto port sentinels.
func (e *RemoteError) Unwrap() error {
	if e.Code == CodeActorNotFound {
		return ports.ErrActorNotFound
	}
	return nil
}

type wireActor struct {
	ID     ports.ActorID `json:"id"`
	TypeID string        `json:"type_id"`
}

func (a wireActor) actor() ports.Actor {
	return ports.Actor{ID: a.ID, TypeID: a.TypeID}
}

type wireBlueprint struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type tmSyncParams struct {
	Port        int  `json:"port"`
	Synchronous bool `json:"synchronous"`
}

type filterParams struct {
	Filter string `json:"filter"`
}

type spawnParams struct {
	Blueprint wireBlueprint   `json:"blueprint"`
	Transform ports.Transform `json:"transform"`
	Parent    ports.ActorID   `json:"parent,omitempty"`
}

type trySpawnResult struct {
	Actor *wireActor `json:"actor"`
}

type autopilotParams struct {
	Actor   ports.ActorID `json:"actor"`
	Enabled bool          `json:"enabled"`
	TMPort  int           `json:"tm_port"`
}

type actorParams struct {
	Actor ports.ActorID `json:"actor"`
}

type sensorParams struct {
	Sensor ports.ActorID `json:"sensor"`
}

type tickResult struct {
	Frame uint64 `json:"frame"`
}

// EncodeImage builds a binary image message.
func EncodeImage(sensor ports.ActorID, img ports.RawImage) []byte {
	buf := make([]byte, imageHeaderSize+len(img.Data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(sensor))
	binary.LittleEndian.PutUint64(buf[4:12], img.Frame)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(img.Width))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(img.Height))
	copy(buf[imageHeaderSize:], img.Data)
	return buf
}

// DecodeImage parses a binary image message. The returned image aliases msg.
func DecodeImage(msg []byte) (ports.ActorID, ports.RawImage, error) {
	if len(msg) < imageHeaderSize {
		return 0, ports.RawImage{}, fmt.Errorf("%w: %d bytes", ErrShortImage, len(msg))
	}
	sensor := ports.ActorID(binary.LittleEndian.Uint32(msg[0:4]))
	img := ports.RawImage{
		Frame:  binary.LittleEndian.Uint64(msg[4:12]),
		Width:  int(binary.LittleEndian.Uint32(msg[12:16])),
		Height: int(binary.LittleEndian.Uint32(msg[16:20])),
		Data:   msg[imageHeaderSize:],
	}
	return sensor, img, nil
}

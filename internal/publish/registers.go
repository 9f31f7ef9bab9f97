package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/camerad/internal/camera"
	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
	"github.com/nerrad567/camerad/internal/sensor"
)

// RegisterCommand is the payload sent on camerad/command/sensor/<camera>.
type RegisterCommand struct {
	ID       string            `json:"id"`
	Camera   int               `json:"camera"`
	Opcode   camera.Opcode     `json:"opcode"`
	DataWord bool              `json:"data_word"`
	Writes   []sensor.RegWrite `json:"writes"`
}

// MQTTRegisterTransport sends register batches to the sensor bridge over MQTT.
type MQTTRegisterTransport struct {
	client MQTTPublisher
}

// NewMQTTRegisterTransport creates a transport on client.
func NewMQTTRegisterTransport(client MQTTPublisher) *MQTTRegisterTransport {
	return &MQTTRegisterTransport{client: client}
}

// WriteRegisters publishes one batch at QoS 1 under a fresh command id.
func (t *MQTTRegisterTransport) WriteRegisters(_ context.Context, cameraIdx int, op camera.Opcode, dataWord bool, writes []sensor.RegWrite) error {
	cmd := RegisterCommand{
		ID:       uuid.NewString(),
		Camera:   cameraIdx,
		Opcode:   op,
		DataWord: dataWord,
		Writes:   writes,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshalling register command: %w", err)
	}
	if err := t.client.Publish(mqtt.Topics{}.SensorCommand(cameraIdx), payload, 1, false); err != nil {
		return fmt.Errorf("publishing register command: %w", err)
	}
	return nil
}

// RegisterTee writes to a primary transport and mirrors each batch to
// secondaries. Only the primary's error is returned.
type RegisterTee struct {
	primary camera.RegisterTransport
	mirrors []camera.RegisterTransport
	logger  Logger
}

// NewRegisterTee creates a tee. logger may be nil.
func NewRegisterTee(logger Logger, primary camera.RegisterTransport, mirrors ...camera.RegisterTransport) *RegisterTee {
	return &RegisterTee{primary: primary, mirrors: mirrors, logger: orNoop(logger)}
}

// WriteRegisters implements camera.RegisterTransport.
func (t *RegisterTee) WriteRegisters(ctx context.Context, cameraIdx int, op camera.Opcode, dataWord bool, writes []sensor.RegWrite) error {
	err := t.primary.WriteRegisters(ctx, cameraIdx, op, dataWord, writes)
	for _, m := range t.mirrors {
		if merr := m.WriteRegisters(ctx, cameraIdx, op, dataWord, writes); merr != nil {
			t.logger.Debug("register mirror failed", "camera", cameraIdx, "error", merr)
		}
	}
	return err
}

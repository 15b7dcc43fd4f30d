package application

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/datamodels/fiware"
	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"
)

func createContextRegistry(log logging.Logger, svc *Service) ngsi.ContextRegistry {
	contextRegistry := ngsi.NewContextRegistry()
	ctxSource := contextSource{svc: svc, log: log}
	contextRegistry.Register(&ctxSource)
	return contextRegistry
}

//contextSource exposes the actuators as NGSI-LD Device entities
type contextSource struct {
	svc *Service
	log logging.Logger
}

//deviceValue encodes the live state of an actuator the same way device values
//are encoded elsewhere, as url escaped key=value pairs separated by ;
func deviceValue(s domain.ActuatorSnapshot) string {
	return url.QueryEscape(fmt.Sprintf("mode=%s;state=%s", s.Mode, s.State))
}

func newDevice(s domain.ActuatorSnapshot) *fiware.Device {
	return fiware.NewDevice(fiware.DeviceIDPrefix+string(s.Device), deviceValue(s))
}

//deviceFromEntityID strips the leading "urn:ngsi-ld:Device:" from an entity id
func deviceFromEntityID(entityID string) (string, bool) {
	if !strings.HasPrefix(entityID, fiware.DeviceIDPrefix) {
		return "", false
	}

	return strings.TrimPrefix(entityID, fiware.DeviceIDPrefix), true
}

//actionFromValue accepts either a bare action or an encoded value carrying an
//action or state key, e.g. "on" or "action%3Dauto"
func actionFromValue(value string) string {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		decoded = value
	}

	if !strings.Contains(decoded, "=") {
		return decoded
	}

	state := ""
	for _, pair := range strings.Split(decoded, ";") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}

		switch strings.TrimSpace(parts[0]) {
		case "action":
			return parts[1]
		case "state":
			state = parts[1]
		}
	}

	return state
}

func (cs contextSource) ProvidesEntitiesWithMatchingID(entityID string) bool {
	device, ok := deviceFromEntityID(entityID)
	return ok && domain.Device(device).Valid()
}

func (cs contextSource) GetProvidedTypeFromID(entityID string) (string, error) {
	if cs.ProvidesEntitiesWithMatchingID(entityID) {
		return "Device", nil
	}

	return "", fmt.Errorf("no entities with id %s are provided by this context source", entityID)
}

func (cs *contextSource) CreateEntity(typeName, entityID string, req ngsi.Request) error {
	err := fmt.Errorf("creation of entities of type %s is not supported, the set of actuators is fixed", typeName)
	cs.log.Errorf("%s", err.Error())
	return err
}

func (cs *contextSource) GetEntities(query ngsi.Query, callback ngsi.QueryEntitiesCallback) error {
	if query == nil {
		return errors.New("GetEntities: query may not be nil")
	}

	for _, typeName := range query.EntityTypes() {
		if typeName != "Device" {
			continue
		}

		for _, snapshot := range cs.svc.engine.Actuators() {
			if err := callback(newDevice(snapshot)); err != nil {
				return err
			}
		}
	}

	return nil
}

func (cs *contextSource) RetrieveEntity(entityID string, req ngsi.Request) (ngsi.Entity, error) {
	device, ok := deviceFromEntityID(entityID)
	if !ok {
		return nil, fmt.Errorf("no entity with id %s found", entityID)
	}

	snapshot, err := cs.svc.GetActuator(device)
	if err != nil {
		return nil, err
	}

	return newDevice(snapshot), nil
}

func (cs contextSource) ProvidesAttribute(attributeName string) bool {
	return attributeName == "value"
}

func (cs contextSource) ProvidesType(typeName string) bool {
	return typeName == "Device"
}

//UpdateEntityAttributes turns a PATCH of the value attribute into a manual override
func (cs *contextSource) UpdateEntityAttributes(entityID string, req ngsi.Request) error {
	updateSource := &fiware.Device{}
	err := req.DecodeBodyInto(updateSource)
	if err != nil {
		cs.log.Errorf("Failed to decode PATCH body in UpdateEntityAttributes: %s", err.Error())
		return err
	}

	if updateSource.Value == nil {
		return domain.NewValidationError("value", "is required")
	}

	device, ok := deviceFromEntityID(entityID)
	if !ok {
		return fmt.Errorf("no entity with id %s found", entityID)
	}

	_, err = cs.svc.SetActuator(device, actionFromValue(updateSource.Value.Value))
	return err
}

package influx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
)

const backlog = 1024

type lineWriter interface {
	WriteRecord(ctx context.Context, line ...string) error
}

//Mirror copies readings, alerts and actuator states into an InfluxDB bucket as
//line protocol. Writes happen on a separate goroutine and are dropped when it
//cannot keep up.
type Mirror struct {
	writer lineWriter
	lines  chan string
	log    logging.Logger
	close  func()
}

//NewMirror creates a Mirror that writes to org/bucket on host
func NewMirror(host, token, org, bucket string, log logging.Logger) *Mirror {
	client := influxdb2.NewClient(host, token)

	m := newMirror(client.WriteAPIBlocking(org, bucket), log)
	m.close = client.Close

	return m
}

func newMirror(w lineWriter, log logging.Logger) *Mirror {
	return &Mirror{
		writer: w,
		lines:  make(chan string, backlog),
		log:    log,
		close:  func() {},
	}
}

//Run writes queued lines until ctx is done
func (m *Mirror) Run(ctx context.Context) {
	defer m.close()

	for {
		select {
		case <-ctx.Done():
			return
		case line := <-m.lines:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := m.writer.WriteRecord(writeCtx, line); err != nil {
				m.log.Errorf("failed to write to influxdb: %s", err.Error())
			}
			cancel()
		}
	}
}

func (m *Mirror) enqueue(line string) {
	select {
	case m.lines <- line:
	default:
		m.log.Warnf("influxdb backlog is full, dropping line")
	}
}

var tagEscaper = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)
var stringEscaper = strings.NewReplacer(`"`, `\"`, `\`, `\\`)

func tag(v string) string {
	return tagEscaper.Replace(v)
}

func (m *Mirror) ReadingAccepted(r domain.Reading, durability persistence.Durability) {
	m.enqueue(fmt.Sprintf("greenhouse_reading,sensor_id=%s,type=%s value=%s %d",
		tag(r.SensorID), tag(string(r.Type)), strconv.FormatFloat(r.Value, 'g', -1, 64), r.Timestamp.UTC().UnixNano()))
}

func (m *Mirror) AlertRaised(a domain.Alert) {
	m.enqueue(fmt.Sprintf(`greenhouse_alert,level=%s,source=%s message="%s" %d`,
		tag(string(a.Level)), tag(string(a.Source)), stringEscaper.Replace(a.Message), a.Timestamp.UTC().UnixNano()))
}

func (m *Mirror) ActuatorChanged(s domain.ActuatorSnapshot, e domain.ActuatorEvent) {
	state := 0
	if s.State == domain.StateOn {
		state = 1
	}

	m.enqueue(fmt.Sprintf("greenhouse_actuator,device=%s,mode=%s,reason=%s state=%di %d",
		tag(string(s.Device)), tag(string(s.Mode)), tag(string(e.Reason)), state, e.Timestamp.UTC().UnixNano()))
}

package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/mtatracker-data/internal/common/logger"
	"github.com/mtatracker-data/internal/models"
)

// Batch is the union of everything decoded from one cycle's feeds.
type Batch struct {
	TripUpdates     []models.TripUpdate
	StopTimeUpdates []models.StopTimeUpdate
	Alerts          []models.Alert
}

// Entity is one decoded feed entity: either a trip update with its stop
// times, or an alert. Exactly one of the two fields is set.
type Entity struct {
	TripUpdate *TripUpdateEntity
	Alert      *AlertEntity
}

type TripUpdateEntity struct {
	Trip      models.TripUpdate
	StopTimes []models.StopTimeUpdate
}

type AlertEntity struct {
	Alert models.Alert
}

// Decoder parses raw GTFS-realtime payloads into normalized records.
type Decoder struct {
	logger logger.Logger
}

func NewDecoder(log logger.Logger) *Decoder {
	return &Decoder{logger: log}
}

// DecodeAll decodes every payload and merges the results. A payload that
// fails to unmarshal contributes nothing; the remaining payloads still
// decode.
func (d *Decoder) DecodeAll(payloads []Payload) Batch {
	var batch Batch
	for _, payload := range payloads {
		if err := d.decodeFeed(payload, &batch); err != nil {
			d.logger.Error("Failed to decode feed", "group", payload.Group, "error", err)
		}
	}
	return batch
}

func (d *Decoder) decodeFeed(payload Payload, batch *Batch) error {
	message := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(payload.Body, message); err != nil {
		return fmt.Errorf("unmarshaling protobuf: %w", err)
	}

	for _, raw := range message.Entity {
		entity, ok := d.decodeEntity(raw)
		if !ok {
			continue
		}
		switch {
		case entity.TripUpdate != nil:
			batch.TripUpdates = append(batch.TripUpdates, entity.TripUpdate.Trip)
			batch.StopTimeUpdates = append(batch.StopTimeUpdates, entity.TripUpdate.StopTimes...)
		case entity.Alert != nil:
			batch.Alerts = append(batch.Alerts, entity.Alert.Alert)
		}
	}

	d.logger.Debug("Decoded feed", "group", payload.Group, "entities", len(message.Entity))
	return nil
}

// decodeEntity classifies one feed entity. Entities carrying neither a trip
// update nor an alert (e.g. vehicle positions) are skipped.
func (d *Decoder) decodeEntity(raw *gtfsrt.FeedEntity) (Entity, bool) {
	if tu := raw.GetTripUpdate(); tu != nil && tu.GetTrip() != nil {
		return Entity{TripUpdate: d.decodeTripUpdate(tu)}, true
	}
	if alert := raw.GetAlert(); alert != nil {
		return Entity{Alert: d.decodeAlert(raw.GetId(), alert)}, true
	}
	return Entity{}, false
}

func (d *Decoder) decodeTripUpdate(tu *gtfsrt.TripUpdate) *TripUpdateEntity {
	trip := tu.GetTrip()
	tripID := trip.GetTripId()

	entity := &TripUpdateEntity{
		Trip: models.TripUpdate{
			TripID:  tripID,
			RouteID: trip.GetRouteId(),
		},
	}

	if trip.GetStartDate() != "" && trip.GetStartTime() != "" {
		start, err := combineStartDatetime(trip.GetStartDate(), trip.GetStartTime())
		if err != nil {
			d.logger.Debug("Unparseable trip start", "trip_id", tripID, "error", err)
		} else {
			entity.Trip.StartDatetime = &start
		}
	}

	for _, stu := range tu.GetStopTimeUpdate() {
		update := models.StopTimeUpdate{
			TripID: tripID,
			StopID: stu.GetStopId(),
		}
		if arrival := stu.GetArrival(); arrival != nil && arrival.Time != nil {
			t := time.Unix(arrival.GetTime(), 0)
			update.ArrivalTime = &t
		}
		if departure := stu.GetDeparture(); departure != nil && departure.Time != nil {
			t := time.Unix(departure.GetTime(), 0)
			update.DepartureTime = &t
		}
		entity.StopTimes = append(entity.StopTimes, update)
	}

	return entity
}

func (d *Decoder) decodeAlert(entityID string, alert *gtfsrt.Alert) *AlertEntity {
	record := models.Alert{
		AlertID:         entityID,
		HeaderText:      firstTranslation(alert.GetHeaderText()),
		DescriptionText: firstTranslation(alert.GetDescriptionText()),
	}

	for _, period := range alert.GetActivePeriod() {
		var p models.ActivePeriod
		if period.Start != nil {
			t := time.Unix(int64(period.GetStart()), 0)
			p.Start = &t
		}
		if period.End != nil {
			t := time.Unix(int64(period.GetEnd()), 0)
			p.End = &t
		}
		record.ActivePeriods = append(record.ActivePeriods, p)
	}

	for _, selector := range alert.GetInformedEntity() {
		record.InformedEntities = append(record.InformedEntities, models.InformedEntity{
			AgencyID: selector.AgencyId,
			RouteID:  selector.RouteId,
			StopID:   selector.StopId,
		})
	}

	return &AlertEntity{Alert: record}
}

func firstTranslation(ts *gtfsrt.TranslatedString) *string {
	translations := ts.GetTranslation()
	if len(translations) == 0 {
		return nil
	}
	text := translations[0].GetText()
	return &text
}

// combineStartDatetime derives a trip's start from the YYYYMMDD service date
// and the HH:MM:SS service time. Hours may run past 23 for trips rolling
// over into the next calendar day, so the time is added as seconds rather
// than parsed as a clock value.
func combineStartDatetime(startDate, startTime string) (time.Time, error) {
	date, err := time.ParseInLocation("20060102", startDate, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}

	seconds, err := parseServiceTime(startTime)
	if err != nil {
		return time.Time{}, err
	}

	return date.Add(time.Duration(seconds) * time.Second), nil
}

// parseServiceTime converts a GTFS HH:MM:SS string to seconds since midnight.
func parseServiceTime(timeStr string) (int, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours: %s", parts[0])
	}

	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes: %s", parts[1])
	}

	seconds, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("invalid seconds: %s", parts[2])
	}

	return hours*3600 + minutes*60 + seconds, nil
}

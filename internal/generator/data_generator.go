package generator

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"

	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// DataGenerator fabricates plausible values for semantic fields and
// type-appropriate defaults for unmapped columns
type DataGenerator struct {
	Faker  faker.Faker
	Rand   *rand.Rand
	Logger *logrus.Logger
}

// NewDataGenerator creates a new data generator
func NewDataGenerator(logger *logrus.Logger) *DataGenerator {
	return &DataGenerator{
		Faker:  faker.New(),
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger: logger,
	}
}

// NewSeededDataGenerator creates a generator with a fixed seed so tests
// get reproducible values
func NewSeededDataGenerator(seed int64, logger *logrus.Logger) *DataGenerator {
	return &DataGenerator{
		Faker:  faker.NewWithSeed(rand.NewSource(seed)),
		Rand:   rand.New(rand.NewSource(seed)),
		Logger: logger,
	}
}

// SemanticValue fabricates a value for a semantic field when the caller
// supplies none
func (dg *DataGenerator) SemanticValue(field string) interface{} {
	switch field {
	case "id":
		return uuid.NewString()
	case "email":
		return dg.Faker.Internet().Email()
	case "name":
		return dg.Faker.Person().Name()
	case "username":
		return strings.ToLower(dg.Faker.Internet().User())
	case "avatar":
		return fmt.Sprintf("https://avatars.example.com/%s.png", uuid.NewString())
	case "bio":
		return dg.Faker.Lorem().Sentence(8)
	case "title":
		return dg.Faker.Lorem().Sentence(4)
	case "body":
		return dg.Faker.Lorem().Paragraph(2)
	case "slug":
		return strings.ToLower(strings.ReplaceAll(dg.Faker.Lorem().Sentence(3), " ", "-"))
	case "key":
		return dg.Faker.Lorem().Word()
	case "value":
		return "{}"
	case "published":
		return true
	case "created_at", "updated_at":
		return time.Now().UTC()
	default:
		return nil
	}
}

// UsernameFromName derives a username from a display name, falling back
// to a fabricated one
func (dg *DataGenerator) UsernameFromName(name string) string {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	if trimmed == "" {
		return strings.ToLower(dg.Faker.Internet().User())
	}
	return strings.ReplaceAll(trimmed, " ", ".")
}

// DefaultForType returns the type-appropriate default used by
// provide_default auto-fixes: empty string for text, 0 for numeric,
// the current timestamp for date/time, false for boolean, and a fresh
// unique id for uuid columns.
func DefaultForType(dataType string) interface{} {
	dt := strings.ToLower(dataType)
	switch {
	case strings.Contains(dt, "uuid"):
		return uuid.NewString()
	case strings.Contains(dt, "bool") || dt == "bit" || dt == "tinyint":
		return false
	case strings.Contains(dt, "int") || strings.Contains(dt, "numeric") ||
		strings.Contains(dt, "decimal") || strings.Contains(dt, "float") ||
		strings.Contains(dt, "double") || strings.Contains(dt, "real"):
		return 0
	case strings.Contains(dt, "timestamp") || strings.Contains(dt, "date") || strings.Contains(dt, "time"):
		return time.Now().UTC()
	case strings.Contains(dt, "json"):
		return "{}"
	default:
		return ""
	}
}

// ValueForColumn generates a plausible value for an unmapped NOT NULL
// column based on its name and declared type
func (dg *DataGenerator) ValueForColumn(column models.Column) interface{} {
	name := strings.ToLower(column.Name)

	switch {
	case strings.Contains(name, "email"):
		return dg.Faker.Internet().Email()
	case strings.Contains(name, "phone"):
		return dg.Faker.Phone().Number()
	case strings.Contains(name, "url") || strings.Contains(name, "website"):
		return dg.Faker.Internet().URL()
	case strings.Contains(name, "password") || strings.Contains(name, "secret"):
		return dg.Faker.Internet().Password()
	case strings.Contains(name, "token"):
		return dg.Faker.RandomStringWithLength(32)
	case strings.Contains(name, "uuid") || strings.HasSuffix(name, "_id"):
		if strings.Contains(strings.ToLower(column.DataType), "uuid") {
			return uuid.NewString()
		}
	case strings.Contains(name, "name"):
		return dg.Faker.Person().Name()
	case strings.Contains(name, "city"):
		return dg.Faker.Address().City()
	case strings.Contains(name, "country"):
		return dg.Faker.Address().Country()
	case strings.Contains(name, "description") || strings.Contains(name, "summary"):
		return dg.Faker.Lorem().Sentence(10)
	case strings.Contains(name, "title"):
		return dg.Faker.Lorem().Sentence(4)
	}

	dt := strings.ToLower(column.DataType)
	switch {
	case strings.Contains(dt, "uuid"):
		return uuid.NewString()
	case strings.Contains(dt, "char") || strings.Contains(dt, "text"):
		return dg.generateString(column)
	case strings.Contains(dt, "bool") || dt == "tinyint":
		return dg.Rand.Intn(2) == 1
	case strings.Contains(dt, "bigint"):
		return dg.Rand.Int63n(1 << 31)
	case strings.Contains(dt, "int"):
		return dg.Rand.Int31n(10000)
	case strings.Contains(dt, "numeric"), strings.Contains(dt, "decimal"),
		strings.Contains(dt, "float"), strings.Contains(dt, "double"), strings.Contains(dt, "real"):
		return float64(dg.Rand.Intn(100000)) / 100
	case strings.Contains(dt, "timestamp"), strings.Contains(dt, "datetime"):
		return time.Now().UTC().Add(-time.Duration(dg.Rand.Intn(30*24)) * time.Hour)
	case strings.Contains(dt, "date"):
		return time.Now().UTC().AddDate(0, 0, -dg.Rand.Intn(365))
	case strings.Contains(dt, "json"):
		return dg.generateJSON(column)
	default:
		dg.Logger.Debugf("No specific generator for type %s, using word", column.DataType)
		return dg.Faker.Lorem().Word()
	}
}

// generateString respects the column's declared maximum length
func (dg *DataGenerator) generateString(column models.Column) string {
	maxLength := int64(255)
	if column.CharMaxLength != nil {
		maxLength = *column.CharMaxLength
	}
	if maxLength > 100 {
		maxLength = 100
	}

	if maxLength <= 5 {
		return dg.Faker.RandomStringWithLength(int(maxLength))
	}
	word := dg.Faker.Lorem().Sentence(int(maxLength / 10))
	if int64(len(word)) > maxLength {
		word = word[:maxLength]
	}
	return word
}

func (dg *DataGenerator) generateJSON(column models.Column) string {
	name := strings.ToLower(column.Name)

	var data interface{}
	if strings.Contains(name, "meta") || strings.Contains(name, "attributes") {
		data = map[string]interface{}{
			"source":  "seed",
			"version": fmt.Sprintf("%d.%d.%d", dg.Rand.Intn(10), dg.Rand.Intn(10), dg.Rand.Intn(10)),
		}
	} else if strings.Contains(name, "tags") {
		data = []string{dg.Faker.Lorem().Word(), dg.Faker.Lorem().Word()}
	} else {
		data = map[string]interface{}{}
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		dg.Logger.Errorf("Error generating JSON: %v", err)
		return "{}"
	}
	return string(jsonBytes)
}

package mongo

import "go.mongodb.org/mongo-driver/bson"

var integerTypes = bson.A{"int", "long"}

var SlotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"practitioner_id",
			"start_time",
			"end_time",
			"capacity",
			"is_active",
			"created_at",
		},
		"additionalProperties": true,
		"properties": bson.M{
			"_id": bson.M{"bsonType": "string", "minLength": 36, "maxLength": 36},
			"practitioner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},
			"start_time": bson.M{"bsonType": "date"},
			"end_time":   bson.M{"bsonType": "date"},
			"capacity": bson.M{
				"bsonType": integerTypes,
				"minimum":  1,
				"maximum":  200,
			},
			"is_active":      bson.M{"bsonType": "bool"},
			"notes":          bson.M{"bsonType": "string", "maxLength": 500},
			"recurring_rule": bson.M{"bsonType": "string"},
			"lock_version":   bson.M{"bsonType": integerTypes},
		},
	},
}

var AppointmentValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"patient_id",
			"practitioner_id",
			"start_time",
			"end_time",
			"status",
			"patient",
			"cancellation_token",
			"created_at",
		},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":             bson.M{"bsonType": "string", "minLength": 36, "maxLength": 36},
			"patient_id":      bson.M{"bsonType": "string", "minLength": 1},
			"practitioner_id": bson.M{"bsonType": "string", "minLength": 1, "maxLength": 64},
			"slot_id":         bson.M{"bsonType": "string"},
			"start_time":      bson.M{"bsonType": "date"},
			"end_time":        bson.M{"bsonType": "date"},
			"status": bson.M{
				"enum": bson.A{"scheduled", "completed", "cancelled", "no_show"},
			},
			"reason": bson.M{"bsonType": "string", "maxLength": 500},
			"patient": bson.M{
				"bsonType": "object",
				"required": []string{"name"},
				"properties": bson.M{
					"name":  bson.M{"bsonType": "string", "minLength": 2, "maxLength": 100},
					"email": bson.M{"bsonType": "string"},
					"phone": bson.M{"bsonType": "string", "pattern": `^\+[1-9]\d{1,14}$`},
				},
			},
			"cancellation_token": bson.M{"bsonType": "string", "minLength": 1},
			"cancelled_at":       bson.M{"bsonType": "date"},
		},
	},
}

var ReservationLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"holder_token", "expires_at"},
		"properties": bson.M{
			"holder_token": bson.M{"bsonType": "string", "minLength": 1},
			"expires_at":   bson.M{"bsonType": "date"},
		},
	},
}

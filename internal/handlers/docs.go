package handlers

import (
	"encoding/json"
	"net/http"
)

type schema = map[string]interface{}

func object(properties schema) schema {
	return schema{"type": "object", "properties": properties}
}

func prop(typ string) schema {
	return schema{"type": typ}
}

func jsonResponse(description string, body schema) schema {
	return schema{
		"description": description,
		"content": schema{
			"application/json": schema{"schema": body},
		},
	}
}

var errorSchema = object(schema{
	"error":   prop("string"),
	"message": prop("string"),
	"code":    prop("integer"),
})

// openAPIDocument describes every route served by cmd/server
func openAPIDocument() schema {
	window := object(schema{
		"temperature_c":    prop("number"),
		"humidity_percent": prop("number"),
		"rainfall_mm":      prop("number"),
		"forecast_date":    schema{"type": "string", "format": "date-time"},
		"status":           prop("string"),
	})

	diagnosis := object(schema{
		"id":           prop("integer"),
		"username":     prop("string"),
		"image_path":   prop("string"),
		"disease_name": prop("string"),
		"confidence":   schema{"type": "number", "nullable": true},
		"extra_json":   schema{"type": "object", "nullable": true},
		"created_at":   schema{"type": "string", "format": "date-time"},
		"updated_at":   schema{"type": "string", "format": "date-time"},
	})

	return schema{
		"openapi": "3.0.0",
		"info": schema{
			"title":       "Sanjeevani Spray Advisory API",
			"description": "Forecast capture, spray window selection and plant image intake",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8000", "description": "Local development server"},
		},
		"paths": schema{
			"/weather/capture-login": schema{
				"post": schema{
					"summary":     "Capture forecast for a login session",
					"description": "Fetches the 5-day forecast, stores 6-hour blocks for the session and reclassifies the latest session. Capture failures are reported with success=false.",
					"requestBody": schema{
						"required": true,
						"content": schema{
							"application/json": schema{
								"schema": schema{
									"type":     "object",
									"required": []string{"latitude", "longitude", "session_id"},
									"properties": schema{
										"latitude":   schema{"type": "number", "minimum": -90, "maximum": 90},
										"longitude":  schema{"type": "number", "minimum": -180, "maximum": 180},
										"session_id": schema{"type": "string", "pattern": "^[^_]+$"},
									},
								},
							},
						},
					},
					"responses": schema{
						"200": jsonResponse("Capture outcome", object(schema{
							"success":      prop("boolean"),
							"message":      prop("string"),
							"blocks":       prop("integer"),
							"classified":   prop("integer"),
							"unclassified": prop("integer"),
						})),
						"400": jsonResponse("Invalid request", errorSchema),
					},
				},
			},
			"/spray/best-time": schema{
				"get": schema{
					"summary":     "Best spray windows",
					"description": "Up to two favorable windows per date from the latest session, local hours 04:00 to 22:00",
					"responses": schema{
						"200": jsonResponse("Selected windows", object(schema{
							"success": prop("boolean"),
							"data":    schema{"type": "array", "items": window},
						})),
						"500": jsonResponse("Store failure", errorSchema),
					},
				},
			},
			"/upload-image": schema{
				"post": schema{
					"summary": "Upload a plant image",
					"requestBody": schema{
						"required": true,
						"content": schema{
							"multipart/form-data": schema{
								"schema": object(schema{
									"image":    schema{"type": "string", "format": "binary"},
									"username": prop("string"),
								}),
							},
						},
					},
					"responses": schema{
						"200": jsonResponse("Stored with a pending diagnosis", object(schema{
							"success":      prop("boolean"),
							"diagnosis_id": prop("integer"),
							"file_path":    prop("string"),
							"message":      prop("string"),
						})),
						"400": jsonResponse("Missing or invalid image", errorSchema),
					},
				},
			},
			"/predict/{crop}": schema{
				"post": schema{
					"summary":     "Diagnose a plant image",
					"description": "Checks the photo shows the selected crop, then stores the disease with a treatment. Send diagnosis_id to reuse an upload or image to send a new one.",
					"parameters": []schema{
						{"name": "crop", "in": "path", "required": true, "schema": prop("string")},
					},
					"requestBody": schema{
						"content": schema{
							"multipart/form-data": schema{
								"schema": object(schema{
									"diagnosis_id": prop("integer"),
									"image":        schema{"type": "string", "format": "binary"},
									"username":     prop("string"),
								}),
							},
						},
					},
					"responses": schema{
						"200": jsonResponse("Diagnosis stored, or success false on a crop mismatch or low confidence", object(schema{
							"success":         prop("boolean"),
							"diagnosis_id":    prop("integer"),
							"predicted_label": prop("string"),
							"confidence":      prop("number"),
							"treatment_info": object(schema{
								"disease":             prop("string"),
								"chemical_pesticides": prop("string"),
								"cause_prevention":    prop("string"),
							}),
							"created_new_row": prop("boolean"),
							"match":           prop("boolean"),
							"detail":          prop("string"),
							"detected":        prop("string"),
						})),
						"400": jsonResponse("Unknown crop or missing image", errorSchema),
						"404": jsonResponse("Unknown diagnosis", errorSchema),
						"503": jsonResponse("Disease model not configured", errorSchema),
					},
				},
			},
			"/diagnosis/{id}": schema{
				"get": schema{
					"summary": "Get a diagnosis",
					"parameters": []schema{
						{"name": "id", "in": "path", "required": true, "schema": prop("integer")},
					},
					"responses": schema{
						"200": jsonResponse("Diagnosis", object(schema{
							"success":   prop("boolean"),
							"diagnosis": diagnosis,
						})),
						"404": jsonResponse("Unknown diagnosis", errorSchema),
					},
				},
			},
			"/health": schema{
				"get": schema{
					"summary": "Health check including database reachability",
					"responses": schema{
						"200": jsonResponse("Healthy", object(schema{"status": prop("string"), "database": prop("string")})),
						"503": jsonResponse("Database unreachable", object(schema{"status": prop("string"), "database": prop("string")})),
					},
				},
			},
			"/metrics": schema{
				"get": schema{
					"summary": "Prometheus metrics",
					"responses": schema{
						"200": schema{
							"description": "Prometheus text exposition",
							"content":     schema{"text/plain": schema{"schema": prop("string")}},
						},
					},
				},
			},
		},
	}
}

// OpenAPISpec serves the OpenAPI 3.0 document
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openAPIDocument())
}

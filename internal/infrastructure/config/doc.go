// Package config loads the sensor collector configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// SENSORS_* environment variables, then Validate. Defaults reproduce the
// legacy collector (broker localhost:1883, client id "database-client",
// topic "sensors/data", database file "sensor-data.db"), so a file only
// needs the settings that differ.
//
// Credentials belong in the environment (SENSORS_MQTT_USERNAME,
// SENSORS_MQTT_PASSWORD, SENSORS_INFLUXDB_TOKEN, SENSORS_REDIS_PASSWORD),
// not in the file.
//
//	cfg, err := config.Load(os.Getenv("SENSORS_CONFIG"))
//	if err != nil {
//	    return err
//	}
package config

// Package override holds the debug-override parameters camerad reads at
// runtime, such as CameraDebugExpGain and CameraDebugExpTime.
//
// Parameters are persisted in the SQLite params table and served from an
// in-memory cache so the exposure controller can read them every frame
// without touching the database. They can be changed over the REST API or
// by publishing to camerad/config/params/<key>; an empty payload clears
// the parameter.
//
// Usage:
//
//	store := override.NewStore(override.NewSQLiteRepository(db.DB))
//	if err := store.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	if err := store.Subscribe(ctx, mqttClient); err != nil {
//	    return err
//	}
//	gain := store.Get("CameraDebugExpGain")
package override

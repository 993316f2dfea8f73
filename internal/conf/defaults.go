// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "GymCheck")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "gymcheck.log")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 60*time.Second)

	viper.SetDefault("database.path", "gymcheck.db")

	viper.SetDefault("verify.labels", []string{
		"gym interior", "fitness center", "weight room", "exercise equipment",
		"sports hall", "office", "living room", "restaurant", "outdoor scene",
	})
	// The decision layer's gym vocabulary is separate from the scene label
	// vocabulary above: the scene list deliberately carries non-gym scenes
	// ("office", "restaurant") for the classifier to pick between.
	viper.SetDefault("verify.gymlabels", []string{
		"gym", "fitness", "weight room", "exercise",
		"workout", "crossfit", "health club", "training room",
	})
	viper.SetDefault("verify.threshold", 0.40)
	viper.SetDefault("verify.margin", 0.05)
	viper.SetDefault("verify.reviewband.low", 0.35)
	viper.SetDefault("verify.reviewband.high", 0.50)
	viper.SetDefault("verify.relaxedfloor", 0.35)
	viper.SetDefault("verify.minsidepx", 224)
	viper.SetDefault("verify.minbytes", 10240)
	viper.SetDefault("verify.maxbytes", 8*1024*1024)
	viper.SetDefault("verify.ratiobound", 2.2)
	viper.SetDefault("verify.brightnessfloor", 40.0)
	viper.SetDefault("verify.dailylimit", 3)

	viper.SetDefault("geofence.defaultradius", 150.0)

	viper.SetDefault("scene.modelpath", "model/scene_v2_fp32.tflite")
	viper.SetDefault("scene.timeout", 60*time.Second)
	viper.SetDefault("scene.threads", 0)

	viper.SetDefault("legacy.modelpath", "model/mobilenet_v1_quant.tflite")
	viper.SetDefault("legacy.labelpath", "model/mobilenet_labels.txt")
	viper.SetDefault("legacy.timeout", 60*time.Second)

	viper.SetDefault("remote.endpoint", "")
	viper.SetDefault("remote.apikey", "")
	viper.SetDefault("remote.model", "")
	viper.SetDefault("remote.timeout", 15*time.Second)
	viper.SetDefault("remote.maxretries", 2)

	viper.SetDefault("mealscan.endpoint", "")
	viper.SetDefault("mealscan.apikey", "")
	viper.SetDefault("mealscan.model", "")
	viper.SetDefault("mealscan.timeout", 15*time.Second)
	viper.SetDefault("mealscan.maxretries", 2)
}

// internal/workers/weather/get-weather/models.go
package getweather

import "encoding/json"

// DateLayout is the yyyy-MM-dd form of Input.Date.
const DateLayout = "2006-01-02"

type Input struct {
	CityName string `json:"city_name"`
	Date     string `json:"date"`
}

// Output carries the provider's day object untouched.
type Output struct {
	WeatherForecast json.RawMessage `json:"weather_forecast"`
}

type forecastResponse struct {
	Forecast *struct {
		ForecastDay []struct {
			Day json.RawMessage `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

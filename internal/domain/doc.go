// Package domain computes FAO-56 crop coefficients (Kc) and growing degree
// days (GDD) for daily field observations.
//
// # Stage Curves
//
// A crop's lifecycle is split into four growth stages (initial, development,
// mid, late). Each stage is described by a [StageBreakpoint]: the cumulative
// position at which the stage ends and the Kc reached there. Positions are
// either elapsed days since planting ([Days]) or cumulative heat units
// ([HeatUnits]); one generic [StageModel] serves both.
//
// Thresholds are inclusive upper bounds. For crop thresholds 20/50/100/120:
//
//	day 20  → initial
//	day 21  → development
//	day 101 → late (anything past mid is late)
//
// Kc within a stage:
//
//	initial:     constant initial Kc
//	development: linear from initial Kc to development Kc
//	mid:         linear from development Kc to mid Kc, then climate-adjusted
//	late:        kc_mid - (kc_mid-kc_late)*(pos-t_late)/(t_mid-t_late),
//	             climate-adjusted only while above 0.45
//
// Results are rounded to two decimals. A zero-length stage yields the Kc at its
// end.
//
// # Climatic Adjustment
//
// FAO-56 Eq. 62 corrects tabulated Kc for wind and humidity away from the
// reference climate (u2 = 2 m/s, RHmin = 45 %):
//
//	Kc + [0.04(u2-2) - 0.0004(RHmin-45)] * (h/3)^0.3
//
// A minimum relative humidity below 1.0 is taken as a fraction and scaled to
// percent. Canopy height h defaults to 1.391 m.
//
// # Growing Degree Days
//
// Daily GDD clamps the maximum temperature to [0, 30] and the minimum to
// [-5, 30], treats a negative base as 0, raises an inverted maximum to the
// minimum and returns max(0, avg-base).
//
// # ID Generation
//
// Record IDs are the crop name plus a SHA-256 prefix of field|crop|date, so a
// replayed observation produces the same key. See [generateID].
package domain

package drivers

var HitsResult = hitsResult

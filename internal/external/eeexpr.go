package external

// eeNode is one node of an Earth Engine expression graph, in the REST
// value:compute wire form.
type eeNode map[string]any

func eeConst(v any) eeNode {
	return eeNode{"constantValue": v}
}

func eeCall(name string, args map[string]eeNode) eeNode {
	if args == nil {
		args = map[string]eeNode{}
	}
	return eeNode{"functionInvocationValue": map[string]any{
		"functionName": name,
		"arguments":    args,
	}}
}

func eeDict(values map[string]eeNode) eeNode {
	return eeNode{"dictionaryValue": map[string]any{"values": values}}
}

// eeExpression wraps a root node in the single-result Expression envelope.
func eeExpression(root eeNode) map[string]any {
	return map[string]any{
		"result": "0",
		"values": map[string]eeNode{"0": root},
	}
}

func eePoint(lon, lat float64) eeNode {
	return eeCall("GeometryConstructors.Point", map[string]eeNode{
		"coordinates": eeConst([]float64{lon, lat}),
	})
}

func eeBuffer(geom eeNode, meters float64) eeNode {
	return eeCall("Geometry.buffer", map[string]eeNode{
		"geometry": geom,
		"distance": eeConst(meters),
	})
}

func eeImage(id string) eeNode {
	return eeCall("Image.load", map[string]eeNode{"id": eeConst(id)})
}

func eeSelect(img eeNode, bands ...string) eeNode {
	return eeCall("Image.select", map[string]eeNode{
		"input":         img,
		"bandSelectors": eeConst(bands),
	})
}

func eeRename(img eeNode, names ...string) eeNode {
	return eeCall("Image.rename", map[string]eeNode{
		"input": img,
		"names": eeConst(names),
	})
}

func eeReducer(name string) eeNode {
	return eeCall("Reducer."+name, nil)
}

// eeMeanAt reduces img to the mean over geom and extracts band.
func eeMeanAt(img, geom eeNode, band string, scale, maxPixels float64) eeNode {
	args := map[string]eeNode{
		"image":    img,
		"reducer":  eeReducer("mean"),
		"geometry": geom,
		"scale":    eeConst(scale),
	}
	if maxPixels > 0 {
		args["maxPixels"] = eeConst(maxPixels)
	}
	return eeCall("Dictionary.get", map[string]eeNode{
		"dictionary": eeCall("Image.reduceRegion", args),
		"key":        eeConst(band),
	})
}

func eeCompare(op string, img eeNode, threshold float64) eeNode {
	return eeCall("Image."+op, map[string]eeNode{
		"image1": img,
		"image2": eeCall("Image.constant", map[string]eeNode{"value": eeConst(threshold)}),
	})
}

func eeCollection(id string) eeNode {
	return eeCall("ImageCollection.load", map[string]eeNode{"id": eeConst(id)})
}

func eeFilter(collection, filter eeNode) eeNode {
	return eeCall("Collection.filter", map[string]eeNode{
		"collection": collection,
		"filter":     filter,
	})
}

func eeFilterBounds(geom eeNode) eeNode {
	return eeCall("Filter.intersects", map[string]eeNode{
		"leftField":  eeConst(".all"),
		"rightValue": geom,
	})
}

func eeFilterDate(start, end string) eeNode {
	return eeCall("Filter.dateRangeContains", map[string]eeNode{
		"leftValue": eeCall("DateRange", map[string]eeNode{
			"start": eeConst(start),
			"end":   eeConst(end),
		}),
		"rightField": eeConst("system:time_start"),
	})
}

func eeFilterLess(field string, value float64) eeNode {
	return eeCall("Filter.lessThan", map[string]eeNode{
		"leftField":  eeConst(field),
		"rightValue": eeConst(value),
	})
}

// eeMedian reduces a collection per pixel; output bands gain a "_median"
// suffix.
func eeMedian(collection eeNode) eeNode {
	return eeCall("ImageCollection.reduce", map[string]eeNode{
		"collection": collection,
		"reducer":    eeReducer("median"),
	})
}

func eeNormalizedDifference(img eeNode, a, b string) eeNode {
	return eeCall("Image.normalizedDifference", map[string]eeNode{
		"input":     img,
		"bandNames": eeConst([]string{a, b}),
	})
}

func eeSlope(img eeNode) eeNode {
	return eeCall("Terrain.slope", map[string]eeNode{"input": img})
}
